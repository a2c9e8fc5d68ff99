package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/ir"
	"github.com/roach88/eventpush/internal/mapping"
	"github.com/roach88/eventpush/internal/resolve"
	"github.com/roach88/eventpush/internal/serialize"
	"github.com/roach88/eventpush/internal/store"
)

// Catalog is the remote catalog API. kind is the remote resource kind from
// the mapping (e.g. "event", "place").
type Catalog interface {
	CreateResource(ctx context.Context, kind string, payload ir.Object) (remoteID string, err error)
	UpdateResource(ctx context.Context, kind, remoteID string, payload ir.Object) error
	DeleteResource(ctx context.Context, kind, remoteID string) error
}

// Mirror is the persisted local-to-remote mirror. *store.Store implements it.
type Mirror interface {
	Lookup(ctx context.Context, objectType, localID string) (store.Record, bool, error)
	Upsert(ctx context.Context, objectType, localID, remoteID string, snapshot ir.Object) error
	Delete(ctx context.Context, objectType, localID string) error
}

// Site builds absolute URLs. *site.Site implements it.
type Site interface {
	CanonicalURL(objectType, id string) string
	FileURL(uri string) string
}

// Engine keeps the catalog in step with local content changes.
//
// One Handle call processes one change end to end: at most one mirror read,
// one catalog call and one mirror write. Calls for the same
// (object type, local id) are serialized; other keys run concurrently.
//
// INVARIANTS:
//   - A mirror record is written only after a successful catalog call
//   - A failed catalog call never changes the mirror
//   - Handle never panics on bad input and never returns an error
type Engine struct {
	mappings    *mapping.Set
	transformer *mapping.Transformer
	mirror      Mirror
	catalog     Catalog
	site        Site

	logger   *slog.Logger
	notifier Notifier
	metrics  *Metrics
	ids      IDGenerator
	clock    *Clock
	locks    *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNotifier sets where notices go. Default: LogNotifier on the engine logger.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics records handle outcomes and catalog latency.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator sets the attempt id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// New creates an Engine.
//
// mappings is parsed once by the caller; a nil or empty set makes every
// object unhandled. site may be nil, in which case no canonical url is
// attached and file URIs are sent as stored.
func New(mappings *mapping.Set, mirror Mirror, catalog Catalog, site Site, opts ...Option) *Engine {
	var files serialize.FileURLs
	if site != nil {
		files = site
	}

	e := &Engine{
		mappings:    mappings,
		transformer: mapping.NewTransformer(serialize.New(files)),
		mirror:      mirror,
		catalog:     catalog,
		site:        site,
		ids:         UUIDv7Generator{},
		clock:       NewClock(),
		locks:       newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.notifier == nil {
		e.notifier = LogNotifier{Logger: e.logger}
	}

	return e
}

// CanHandle reports whether a mapping exists for obj's type.
func (e *Engine) CanHandle(obj content.Object) bool {
	if content.IsNil(obj) {
		return false
	}
	_, ok := e.mappings.Lookup(obj.Type())
	return ok
}

// Payload builds the payload Handle would send for obj, canonical url included.
func (e *Engine) Payload(obj content.Object) (ir.Object, bool) {
	if content.IsNil(obj) {
		return nil, false
	}
	spec, ok := e.mappings.Lookup(obj.Type())
	if !ok {
		return nil, false
	}
	return e.transformer.Transform(obj, spec, e.extra(obj)), true
}

// Diagnose strictly resolves every mapped path of obj and returns the
// failures. It reports nothing for unmapped types.
func (e *Engine) Diagnose(obj content.Object) []*resolve.PathError {
	if content.IsNil(obj) {
		return nil
	}
	spec, ok := e.mappings.Lookup(obj.Type())
	if !ok {
		return nil
	}
	return e.transformer.Diagnose(obj, spec)
}

// Handle applies one local change to the catalog.
//
// Unmapped types are skipped silently. Delete without a mirror record is a
// no-op. Update without a mirror record creates, and so does insert. Insert
// with an existing record updates that resource instead of creating a
// second one.
func (e *Engine) Handle(ctx context.Context, obj content.Object, action Action) Result {
	res := Result{
		AttemptID: e.ids.Generate(),
		Seq:       e.clock.Next(),
		Action:    action,
	}

	if content.IsNil(obj) {
		res.Outcome = OutcomeSkipped
		return res
	}
	res.ObjectType = obj.Type()
	res.LocalID = obj.ID()

	spec, ok := e.mappings.Lookup(obj.Type())
	if !ok {
		res.Outcome = OutcomeSkipped
		e.logger.Debug("no mapping for object type", "object_type", res.ObjectType, "local_id", res.LocalID)
		e.metrics.observeResult(res)
		return res
	}

	if _, err := ParseAction(string(action)); err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeInvalidAction, Err: err}, "")
	}

	unlock := e.locks.Lock(res.ObjectType + "\x00" + res.LocalID)
	defer unlock()

	e.logger.Info("handling object",
		"attempt_id", res.AttemptID,
		"seq", res.Seq,
		"object_type", res.ObjectType,
		"action", string(action),
		"local_id", res.LocalID,
	)

	rec, found, err := e.mirror.Lookup(ctx, res.ObjectType, res.LocalID)
	if err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeStateRead, Err: err}, "")
	}

	switch {
	case action == ActionDelete && !found:
		res.Outcome = OutcomeNoop
		e.logger.Info("nothing to delete", "attempt_id", res.AttemptID, "object_type", res.ObjectType, "local_id", res.LocalID)
		e.metrics.observeResult(res)
		return res
	case action == ActionDelete:
		return e.delete(ctx, res, obj, spec, rec)
	case found:
		if action == ActionInsert {
			e.logger.Warn("insert for an object already in the catalog, updating instead",
				"attempt_id", res.AttemptID, "object_type", res.ObjectType, "local_id", res.LocalID, "remote_id", rec.RemoteID)
		}
		return e.update(ctx, res, obj, spec, rec)
	default:
		return e.create(ctx, res, obj, spec)
	}
}

func (e *Engine) create(ctx context.Context, res Result, obj content.Object, spec *mapping.Spec) Result {
	payload := e.transformer.Transform(obj, spec, e.extra(obj))
	res.Payload = payload

	hash, err := ir.PayloadHash(payload)
	if err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodePayload, Err: err}, "create")
	}

	start := time.Now()
	remoteID, err := e.catalog.CreateResource(ctx, spec.Type, payload)
	if err == nil && remoteID == "" {
		err = errors.New("catalog returned an empty id")
	}
	e.metrics.observeRemote("create", start, err)
	if err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeRemoteCall, Err: err}, "create")
	}
	res.RemoteID = remoteID

	if err := e.mirror.Upsert(ctx, res.ObjectType, res.LocalID, remoteID, e.snapshot(remoteID, spec.Type, payload, hash)); err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeStateWrite, RemoteID: remoteID, Err: err}, "create")
	}

	res.Outcome = OutcomeCreated
	return e.succeed(ctx, res, obj, spec, "created in catalog")
}

func (e *Engine) update(ctx context.Context, res Result, obj content.Object, spec *mapping.Spec, rec store.Record) Result {
	payload := e.transformer.Transform(obj, spec, e.extra(obj))
	res.Payload = payload
	res.RemoteID = rec.RemoteID

	hash, err := ir.PayloadHash(payload)
	if err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodePayload, RemoteID: rec.RemoteID, Err: err}, "update")
	}

	start := time.Now()
	err = e.catalog.UpdateResource(ctx, spec.Type, rec.RemoteID, payload)
	e.metrics.observeRemote("update", start, err)
	if err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeRemoteCall, RemoteID: rec.RemoteID, Err: err}, "update")
	}

	if err := e.mirror.Upsert(ctx, res.ObjectType, res.LocalID, rec.RemoteID, e.snapshot(rec.RemoteID, spec.Type, payload, hash)); err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeStateWrite, RemoteID: rec.RemoteID, Err: err}, "update")
	}

	res.Outcome = OutcomeUpdated
	return e.succeed(ctx, res, obj, spec, "updated in catalog")
}

func (e *Engine) delete(ctx context.Context, res Result, obj content.Object, spec *mapping.Spec, rec store.Record) Result {
	res.RemoteID = rec.RemoteID

	// The kind the resource was created under wins over the current mapping.
	kind := spec.Type
	if k, ok := rec.Snapshot["kind"].(ir.String); ok && k != "" {
		kind = string(k)
	}

	start := time.Now()
	err := e.catalog.DeleteResource(ctx, kind, rec.RemoteID)
	e.metrics.observeRemote("delete", start, err)
	if err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeRemoteCall, RemoteID: rec.RemoteID, Err: err}, "delete")
	}

	if err := e.mirror.Delete(ctx, res.ObjectType, res.LocalID); err != nil {
		return e.fail(ctx, res, obj, spec, &SyncError{Code: ErrCodeStateWrite, RemoteID: rec.RemoteID, Err: err}, "delete")
	}

	res.Outcome = OutcomeDeleted
	return e.succeed(ctx, res, obj, spec, "deleted from catalog")
}

// extra holds fields attached after mapping; they win over mapped keys.
func (e *Engine) extra(obj content.Object) ir.Object {
	if e.site == nil {
		return nil
	}
	return ir.Object{"url": ir.String(e.site.CanonicalURL(obj.Type(), obj.ID()))}
}

// snapshot is what the mirror keeps about the remote resource.
func (e *Engine) snapshot(remoteID, kind string, payload ir.Object, hash string) ir.Object {
	snap := ir.Object{
		"id":           ir.String(remoteID),
		"kind":         ir.String(kind),
		"payload_hash": ir.String(hash),
	}
	if url, ok := payload["url"]; ok {
		snap["url"] = url
	}
	return snap
}

func (e *Engine) succeed(ctx context.Context, res Result, obj content.Object, spec *mapping.Spec, verb string) Result {
	e.logger.Info("sync succeeded",
		"attempt_id", res.AttemptID,
		"object_type", res.ObjectType,
		"action", string(res.Action),
		"local_id", res.LocalID,
		"outcome", string(res.Outcome),
		"remote_id", res.RemoteID,
	)
	e.notifier.Notify(ctx, Notice{
		Level:      NoticeInfo,
		Message:    successMessage(spec.Type, obj.Title(), res.LocalID, res.RemoteID, verb),
		ObjectType: res.ObjectType,
		LocalID:    res.LocalID,
		Action:     res.Action,
	})
	e.metrics.observeResult(res)
	return res
}

// fail fills in the error context, logs, notifies and records the result.
// op names the catalog operation for the notice ("create", "update",
// "delete"); empty when the failure happened before choosing one.
func (e *Engine) fail(ctx context.Context, res Result, obj content.Object, spec *mapping.Spec, serr *SyncError, op string) Result {
	serr.Action = res.Action
	serr.ObjectType = res.ObjectType
	serr.LocalID = res.LocalID

	res.Outcome = OutcomeFailed
	res.Err = serr

	e.logger.Error("sync failed",
		"attempt_id", res.AttemptID,
		"object_type", res.ObjectType,
		"action", string(res.Action),
		"local_id", res.LocalID,
		"remote_id", serr.RemoteID,
		"code", string(serr.Code),
		"error", serr.Err,
	)

	msg := failureMessage(op, spec.Type, obj.Title())
	if serr.Code == ErrCodeStateWrite {
		msg = fmt.Sprintf("%s %q was sent to the catalog (%s) but its sync state could not be saved",
			capitalize(spec.Type), obj.Title(), serr.RemoteID)
	}
	e.notifier.Notify(ctx, Notice{
		Level:      NoticeError,
		Message:    msg,
		ObjectType: res.ObjectType,
		LocalID:    res.LocalID,
		Action:     res.Action,
	})
	e.metrics.observeResult(res)
	return res
}
