package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/engine"
)

type handled struct {
	Type   string
	ID     string
	Title  string
	Action engine.Action
}

// recordingHandler reports every call on a channel.
type recordingHandler struct {
	mu    sync.Mutex
	calls chan handled
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(chan handled, 32)}
}

func (h *recordingHandler) Handle(_ context.Context, obj content.Object, action engine.Action) engine.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls <- handled{Type: obj.Type(), ID: obj.ID(), Title: obj.Title(), Action: action}
	return engine.Result{ObjectType: obj.Type(), LocalID: obj.ID(), Action: action, Outcome: engine.OutcomeUpdated}
}

func (h *recordingHandler) next(t *testing.T) handled {
	t.Helper()
	select {
	case c := <-h.calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handle call")
		return handled{}
	}
}

func (h *recordingHandler) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case c := <-h.calls:
		t.Fatalf("unexpected handle call: %+v", c)
	case <-time.After(wait):
	}
}

func writeDoc(t *testing.T, path, typ, id, title string) {
	t.Helper()
	doc := `{"type": "` + typ + `", "id": "` + id + `", "title": "` + title + `"}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func startWatcher(t *testing.T, dir string, h Handler, opts ...Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDebounce(20 * time.Millisecond),
	}, opts...)
	w := New(dir, h, opts...)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
}

func TestWatcher_WriteHandlesUpdate(t *testing.T) {
	dir := t.TempDir()
	h := newRecordingHandler()
	startWatcher(t, dir, h)

	writeDoc(t, filepath.Join(dir, "jazz.json"), "event", "42", "Jazz Night")

	got := h.next(t)
	assert.Equal(t, handled{Type: "event", ID: "42", Title: "Jazz Night", Action: engine.ActionUpdate}, got)
}

func TestWatcher_RemoveHandlesDeleteWithLastIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jazz.json")
	writeDoc(t, path, "event", "42", "Jazz Night")

	h := newRecordingHandler()
	startWatcher(t, dir, h)

	require.NoError(t, os.Remove(path))

	got := h.next(t)
	assert.Equal(t, engine.ActionDelete, got.Action)
	assert.Equal(t, "event", got.Type)
	assert.Equal(t, "42", got.ID)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	h := newRecordingHandler()
	startWatcher(t, dir, h)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("{}"), 0o644))

	h.none(t, 200*time.Millisecond)
}

func TestWatcher_SkipsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	h := newRecordingHandler()
	startWatcher(t, dir, h)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"title": "no type"}`), 0o644))
	h.none(t, 200*time.Millisecond)

	writeDoc(t, filepath.Join(dir, "ok.json"), "event", "1", "Fine")
	assert.Equal(t, "1", h.next(t).ID)
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	h := newRecordingHandler()
	startWatcher(t, dir, h, WithDebounce(100*time.Millisecond))

	path := filepath.Join(dir, "jazz.json")
	for _, title := range []string{"Draft 1", "Draft 2", "Jazz Night"} {
		writeDoc(t, path, "event", "42", title)
	}

	got := h.next(t)
	assert.Equal(t, "Jazz Night", got.Title)
	h.none(t, 300*time.Millisecond)
}

func TestWatcher_IdentityChangeDeletesOldObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slot.json")
	writeDoc(t, path, "event", "1", "First")

	h := newRecordingHandler()
	startWatcher(t, dir, h)

	writeDoc(t, path, "event", "2", "Second")

	first := h.next(t)
	assert.Equal(t, handled{Type: "event", ID: "1", Title: "First", Action: engine.ActionDelete}, first)
	second := h.next(t)
	assert.Equal(t, handled{Type: "event", ID: "2", Title: "Second", Action: engine.ActionUpdate}, second)
}

func TestWatcher_ResultFunc(t *testing.T) {
	dir := t.TempDir()
	h := newRecordingHandler()

	results := make(chan engine.Result, 1)
	startWatcher(t, dir, h, WithResultFunc(func(j Job, res engine.Result) {
		assert.Equal(t, filepath.Join(dir, "a.json"), j.Path)
		results <- res
	}))

	writeDoc(t, filepath.Join(dir, "a.json"), "event", "7", "Seven")
	h.next(t)

	select {
	case res := <-results:
		assert.Equal(t, "7", res.LocalID)
	case <-time.After(5 * time.Second):
		t.Fatal("result func not called")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope"), newRecordingHandler())
	err := w.Run(context.Background())
	assert.Error(t, err)
}
