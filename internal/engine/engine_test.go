package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/ir"
	"github.com/roach88/eventpush/internal/mapping"
	"github.com/roach88/eventpush/internal/site"
	"github.com/roach88/eventpush/internal/store"
	fakes "github.com/roach88/eventpush/internal/testutil"
)

const eventMapping = `
event:
  type: event
  mapping:
    name: title
    description: field_description
`

// failingMirror wraps a store and fails the chosen operation.
type failingMirror struct {
	Mirror
	lookupErr error
	upsertErr error
	deleteErr error
}

func (m *failingMirror) Lookup(ctx context.Context, t, id string) (store.Record, bool, error) {
	if m.lookupErr != nil {
		return store.Record{}, false, m.lookupErr
	}
	return m.Mirror.Lookup(ctx, t, id)
}

func (m *failingMirror) Upsert(ctx context.Context, t, id, remoteID string, snap ir.Object) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	return m.Mirror.Upsert(ctx, t, id, remoteID, snap)
}

func (m *failingMirror) Delete(ctx context.Context, t, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	return m.Mirror.Delete(ctx, t, id)
}

// noticeLog collects notices.
type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) Notify(_ context.Context, n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *noticeLog) all() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}

type fixture struct {
	engine  *Engine
	store   *store.Store
	catalog *fakes.FakeCatalog
	notices *noticeLog
	reg     *prometheus.Registry
	metrics *Metrics
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, mirror Mirror, ids ...string) *fixture {
	t.Helper()

	set, err := mapping.Parse("test", []byte(eventMapping))
	require.NoError(t, err)

	st := setupTestStore(t)
	if mirror == nil {
		mirror = st
	}
	s, err := site.New("https://kultur.example.com", "", "")
	require.NoError(t, err)

	f := &fixture{
		store:   st,
		catalog: fakes.NewFakeCatalog(ids...),
		notices: &noticeLog{},
		reg:     prometheus.NewRegistry(),
	}
	f.metrics = NewMetrics(f.reg)
	f.engine = New(set, mirror, f.catalog, s,
		WithLogger(quietLogger()),
		WithNotifier(f.notices),
		WithMetrics(f.metrics),
	)
	return f
}

func jazzNight(title string) *content.Node {
	return content.NewNode("event", "42", title,
		&content.Field{Name: "field_description", Kind: content.KindScalar, Values: []any{"Live music"}},
	)
}

func TestEngine_CanHandle(t *testing.T) {
	f := newFixture(t, nil)

	assert.True(t, f.engine.CanHandle(jazzNight("Jazz Night")))
	assert.False(t, f.engine.CanHandle(content.NewNode("article", "1", "News")))
	assert.False(t, f.engine.CanHandle(nil))
}

func TestEngine_CanHandle_EmptyMappingSet(t *testing.T) {
	eng := New(nil, setupTestStore(t), fakes.NewFakeCatalog(), nil, WithLogger(quietLogger()))
	assert.False(t, eng.CanHandle(jazzNight("Jazz Night")))

	res := eng.Handle(context.Background(), jazzNight("Jazz Night"), ActionInsert)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.NoError(t, res.Err)
}

func TestEngine_Handle_UnmappedTypeSkipped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.engine.Handle(ctx, content.NewNode("article", "1", "News"), ActionInsert)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.True(t, res.OK())
	assert.Empty(t, f.catalog.Calls())
	assert.Empty(t, f.notices.all(), "skips are silent")
}

// End-to-end: insert creates evt-9, update with a new title updates evt-9.
func TestEngine_Handle_InsertThenUpdate(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()

	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, "evt-9", res.RemoteID)

	creates := f.catalog.CallsFor("create")
	require.Len(t, creates, 1)
	assert.Equal(t, "event", creates[0].Kind)
	assert.Equal(t, ir.Object{
		"name":        ir.String("Jazz Night"),
		"description": ir.String("Live music"),
		"url":         ir.String("https://kultur.example.com/node/42"),
	}, creates[0].Payload)

	rec, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "evt-9", rec.RemoteID)

	res = f.engine.Handle(ctx, jazzNight("Jazz Night Encore"), ActionUpdate)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUpdated, res.Outcome)

	assert.Len(t, f.catalog.CallsFor("create"), 1, "update must not create")
	updates := f.catalog.CallsFor("update")
	require.Len(t, updates, 1)
	assert.Equal(t, "evt-9", updates[0].RemoteID)
	assert.Equal(t, ir.String("Jazz Night Encore"), updates[0].Payload["name"])

	stored, ok := f.catalog.Resource("evt-9")
	require.True(t, ok)
	assert.Equal(t, ir.String("Jazz Night Encore"), stored["name"])
}

func TestEngine_Handle_PayloadGolden(t *testing.T) {
	f := newFixture(t, nil, "evt-9")

	res := f.engine.Handle(context.Background(), jazzNight("Jazz Night"), ActionInsert)
	require.NoError(t, res.Err)

	data, err := ir.MarshalCanonical(res.Payload)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "insert_payload", data)
}

func TestEngine_Handle_SnapshotContents(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()

	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
	require.NoError(t, res.Err)

	rec, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	require.True(t, found)

	hash, err := ir.PayloadHash(res.Payload)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{
		"id":           ir.String("evt-9"),
		"kind":         ir.String("event"),
		"url":          ir.String("https://kultur.example.com/node/42"),
		"payload_hash": ir.String(hash),
	}, rec.Snapshot)
}

// Update with no mirror record falls back to create.
func TestEngine_Handle_UpdateWithoutRecordCreates(t *testing.T) {
	f := newFixture(t, nil, "evt-1")
	ctx := context.Background()

	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionUpdate)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCreated, res.Outcome)

	assert.Len(t, f.catalog.CallsFor("create"), 1)
	assert.Empty(t, f.catalog.CallsFor("update"))

	rec, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "evt-1", rec.RemoteID)
}

// Delete with no mirror record does nothing.
func TestEngine_Handle_DeleteWithoutRecordIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionDelete)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeNoop, res.Outcome)

	assert.Empty(t, f.catalog.Calls())
	_, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngine_Handle_Delete(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()

	require.NoError(t, f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert).Err)

	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionDelete)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
	assert.Equal(t, "evt-9", res.RemoteID)

	deletes := f.catalog.CallsFor("delete")
	require.Len(t, deletes, 1)
	assert.Equal(t, "evt-9", deletes[0].RemoteID)
	assert.Equal(t, "event", deletes[0].Kind)
	assert.Equal(t, 0, f.catalog.Len())

	_, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	assert.False(t, found)
}

// A failed create writes no mirror record and reports a failure notice.
func TestEngine_Handle_FailedCreateLeavesNoMirror(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()
	f.catalog.FailNext("create", errors.New("503 service unavailable"))

	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.True(t, IsRemoteCallError(res.Err))
	assert.False(t, res.OK())

	var se *SyncError
	require.True(t, errors.As(res.Err, &se))
	assert.Equal(t, ErrCodeRemoteCall, se.Code)
	assert.Equal(t, "event", se.ObjectType)
	assert.Equal(t, "42", se.LocalID)

	_, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	assert.False(t, found)

	notices := f.notices.all()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Level)
	assert.Equal(t, `Cannot create event "Jazz Night" in catalog`, notices[0].Message)

	// The next save retries.
	res = f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionUpdate)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, "evt-9", res.RemoteID)
}

func TestEngine_Handle_FailedUpdateKeepsMirror(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()

	require.NoError(t, f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert).Err)
	before, _, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)

	f.catalog.FailNext("update", errors.New("timeout"))
	res := f.engine.Handle(ctx, jazzNight("Jazz Night Encore"), ActionUpdate)
	assert.True(t, IsRemoteCallError(res.Err))

	after, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, before, after)

	notices := f.notices.all()
	assert.Equal(t, `Cannot update event "Jazz Night Encore" in catalog`, notices[len(notices)-1].Message)
}

func TestEngine_Handle_FailedDeleteKeepsMirror(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()

	require.NoError(t, f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert).Err)

	f.catalog.FailNext("delete", errors.New("connection refused"))
	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionDelete)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, IsRemoteCallError(res.Err))

	rec, found, err := f.store.Lookup(ctx, "event", "42")
	require.NoError(t, err)
	require.True(t, found, "mirror must survive a failed delete")
	assert.Equal(t, "evt-9", rec.RemoteID)

	notices := f.notices.all()
	assert.Equal(t, `Error deleting event "Jazz Night" from catalog`, notices[len(notices)-1].Message)

	// Retry succeeds.
	res = f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionDelete)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
}

func TestEngine_Handle_StateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup", func(t *testing.T) {
		m := &failingMirror{lookupErr: errors.New("disk I/O error")}
		f := newFixture(t, m)
		m.Mirror = f.store

		res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
		assert.True(t, IsStateError(res.Err))
		assert.Empty(t, f.catalog.Calls(), "no remote call without a mirror read")
	})

	t.Run("upsert", func(t *testing.T) {
		m := &failingMirror{upsertErr: errors.New("database is locked")}
		f := newFixture(t, m, "evt-9")
		m.Mirror = f.store

		res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
		require.Error(t, res.Err)
		assert.True(t, IsStateError(res.Err))
		assert.Equal(t, "evt-9", res.RemoteID)

		var se *SyncError
		require.True(t, errors.As(res.Err, &se))
		assert.Equal(t, ErrCodeStateWrite, se.Code)

		notices := f.notices.all()
		require.Len(t, notices, 1)
		assert.Contains(t, notices[0].Message, "evt-9")

		// Nothing was recorded, so a retry creates a second resource.
		m.upsertErr = nil
		res = f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
		require.NoError(t, res.Err)
		assert.Equal(t, OutcomeCreated, res.Outcome)
		assert.NotEqual(t, "evt-9", res.RemoteID)
		assert.Len(t, f.catalog.CallsFor("create"), 2)
	})
}

func TestEngine_Handle_InvalidAction(t *testing.T) {
	f := newFixture(t, nil)

	res := f.engine.Handle(context.Background(), jazzNight("Jazz Night"), Action("publish"))

	var se *SyncError
	require.True(t, errors.As(res.Err, &se))
	assert.Equal(t, ErrCodeInvalidAction, se.Code)
	assert.Empty(t, f.catalog.Calls())
}

// An insert for an object that already has a record updates instead of
// creating a duplicate.
func TestEngine_Handle_RepeatedInsertDoesNotDuplicate(t *testing.T) {
	f := newFixture(t, nil, "evt-9", "evt-10")
	ctx := context.Background()

	require.NoError(t, f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert).Err)
	res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
	require.NoError(t, res.Err)

	assert.Equal(t, OutcomeUpdated, res.Outcome)
	assert.Len(t, f.catalog.CallsFor("create"), 1)
	assert.Equal(t, 1, f.catalog.Len())
}

func TestEngine_Handle_ConcurrentSameKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const saves = 20
	var wg sync.WaitGroup
	for i := 0; i < saves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionUpdate)
			assert.NoError(t, res.Err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.catalog.CallsFor("create"), 1, "exactly one remote resource")
	assert.Len(t, f.catalog.CallsFor("update"), saves-1)
	assert.Equal(t, 0, f.engine.locks.size())
}

func TestEngine_Handle_ConcurrentDistinctKeys(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const objects = 10
	var wg sync.WaitGroup
	for i := 0; i < objects; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obj := content.NewNode("event", fmt.Sprint(i), fmt.Sprintf("Event %d", i))
			res := f.engine.Handle(ctx, obj, ActionInsert)
			assert.NoError(t, res.Err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, objects, f.catalog.Len())
	for i := 0; i < objects; i++ {
		_, found, err := f.store.Lookup(ctx, "event", fmt.Sprint(i))
		require.NoError(t, err)
		assert.True(t, found)
	}
}

func TestEngine_Handle_SuccessNotices(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()

	f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
	f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionUpdate)
	f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionDelete)

	var msgs []string
	for _, n := range f.notices.all() {
		assert.Equal(t, NoticeInfo, n.Level)
		assert.Equal(t, "event", n.ObjectType)
		assert.Equal(t, "42", n.LocalID)
		msgs = append(msgs, n.Message)
	}
	assert.Equal(t, []string{
		`Event "Jazz Night" (42; evt-9) created in catalog`,
		`Event "Jazz Night" (42; evt-9) updated in catalog`,
		`Event "Jazz Night" (42; evt-9) deleted from catalog`,
	}, msgs)
}

func TestEngine_Handle_AttemptIDsAndSeq(t *testing.T) {
	set, err := mapping.Parse("test", []byte(eventMapping))
	require.NoError(t, err)

	eng := New(set, setupTestStore(t), fakes.NewFakeCatalog("evt-9"), nil,
		WithLogger(quietLogger()),
		WithNotifier(NotifierFunc(func(context.Context, Notice) {})),
		WithIDGenerator(NewFixedGenerator("attempt-1", "attempt-2")),
	)

	r1 := eng.Handle(context.Background(), jazzNight("Jazz Night"), ActionInsert)
	r2 := eng.Handle(context.Background(), jazzNight("Jazz Night"), ActionUpdate)

	assert.Equal(t, "attempt-1", r1.AttemptID)
	assert.Equal(t, "attempt-2", r2.AttemptID)
	assert.Less(t, r1.Seq, r2.Seq)

	// No site: no canonical url attached.
	_, hasURL := r1.Payload["url"]
	assert.False(t, hasURL)
}

func TestEngine_Metrics(t *testing.T) {
	f := newFixture(t, nil, "evt-9")
	ctx := context.Background()

	f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionInsert)
	f.catalog.FailNext("update", errors.New("boom"))
	f.engine.Handle(ctx, jazzNight("Jazz Night"), ActionUpdate)
	f.engine.Handle(ctx, content.NewNode("article", "1", "News"), ActionInsert)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.handled.WithLabelValues("event", "insert", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.handled.WithLabelValues("event", "update", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.handled.WithLabelValues("article", "insert", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.remoteErrors.WithLabelValues("update")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.remoteErrors.WithLabelValues("create")))
	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.remoteDuration))
}

func TestEngine_Payload(t *testing.T) {
	f := newFixture(t, nil)

	p, ok := f.engine.Payload(jazzNight("Jazz Night"))
	require.True(t, ok)
	assert.Equal(t, ir.String("https://kultur.example.com/node/42"), p["url"])

	_, ok = f.engine.Payload(content.NewNode("article", "1", "News"))
	assert.False(t, ok)
	assert.Empty(t, f.catalog.Calls())
}

func TestEngine_Diagnose(t *testing.T) {
	f := newFixture(t, nil)

	missing := content.NewNode("event", "42", "Jazz Night")
	errs := f.engine.Diagnose(missing)
	require.Len(t, errs, 1)
	assert.Equal(t, "field_description", errs[0].Path)

	assert.Empty(t, f.engine.Diagnose(jazzNight("Jazz Night")))
	assert.Nil(t, f.engine.Diagnose(content.NewNode("article", "1", "News")))
}

const venueMapping = `
event:
  type: event
  mapping:
    name: title
    location: field_venue
`

// A referenced venue deleted on the host arrives as a nil *content.Node.
func TestEngine_Handle_DeletedReference(t *testing.T) {
	set, err := mapping.Parse("test", []byte(venueMapping))
	require.NoError(t, err)
	catalog := fakes.NewFakeCatalog("evt-9", "evt-10")
	eng := New(set, setupTestStore(t), catalog, nil, WithLogger(quietLogger()))
	ctx := context.Background()

	venue := func(id string, values ...any) *content.Node {
		return content.NewNode("event", id, "Jazz Night",
			&content.Field{Name: "field_venue", Kind: content.KindEntityReference, Target: content.TargetContent, Values: values},
		)
	}

	var res Result
	require.NotPanics(t, func() {
		res = eng.Handle(ctx, venue("42", (*content.Node)(nil)), ActionInsert)
	})
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	creates := catalog.CallsFor("create")
	require.Len(t, creates, 1)
	assert.NotContains(t, creates[0].Payload, "location")

	require.NotPanics(t, func() {
		res = eng.Handle(ctx, venue("43", (*content.Node)(nil), content.NewNode("place", "7", "Dokk1")), ActionInsert)
	})
	require.NoError(t, res.Err)
	creates = catalog.CallsFor("create")
	require.Len(t, creates, 2)
	assert.Equal(t, ir.String("Dokk1"), creates[1].Payload["location"])
}

func TestEngine_Handle_NilNodeSkipped(t *testing.T) {
	f := newFixture(t, nil)

	res := f.engine.Handle(context.Background(), (*content.Node)(nil), ActionInsert)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.NoError(t, res.Err)
	assert.False(t, f.engine.CanHandle((*content.Node)(nil)))
	assert.Empty(t, f.catalog.Calls())
}
