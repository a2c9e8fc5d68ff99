package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/eventpush/internal/ir"
)

// ErrNotFound is returned by FakeCatalog for unknown remote ids.
var ErrNotFound = errors.New("resource not found")

// CatalogCall is one recorded call against a FakeCatalog.
type CatalogCall struct {
	Op       string // "create", "update" or "delete"
	Kind     string
	RemoteID string
	Payload  ir.Object
}

// FakeCatalog is an in-memory remote catalog. It satisfies engine.Catalog.
//
// Remote ids come from the preset list given to NewFakeCatalog, then from
// random UUIDs. Failures are injected per operation with FailNext.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeCatalog struct {
	mu        sync.Mutex
	ids       []string
	calls     []CatalogCall
	resources map[string]ir.Object
	failures  map[string][]error
}

// NewFakeCatalog creates an empty catalog that hands out ids in order.
func NewFakeCatalog(ids ...string) *FakeCatalog {
	return &FakeCatalog{
		ids:       ids,
		resources: make(map[string]ir.Object),
		failures:  make(map[string][]error),
	}
}

// FailNext makes the next call of op ("create", "update", "delete") return err.
// Calls queue up: FailNext twice fails the next two calls.
func (c *FakeCatalog) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], err)
}

// CreateResource stores payload and returns a new remote id.
func (c *FakeCatalog) CreateResource(ctx context.Context, kind string, payload ir.Object) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, CatalogCall{Op: "create", Kind: kind, Payload: payload})
	if err := c.popFailure("create"); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if len(c.ids) > 0 {
		id, c.ids = c.ids[0], c.ids[1:]
	}
	c.resources[id] = payload
	c.calls[len(c.calls)-1].RemoteID = id
	return id, nil
}

// UpdateResource replaces the payload stored under remoteID.
func (c *FakeCatalog) UpdateResource(ctx context.Context, kind, remoteID string, payload ir.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, CatalogCall{Op: "update", Kind: kind, RemoteID: remoteID, Payload: payload})
	if err := c.popFailure("update"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := c.resources[remoteID]; !ok {
		return fmt.Errorf("update %s %s: %w", kind, remoteID, ErrNotFound)
	}
	c.resources[remoteID] = payload
	return nil
}

// DeleteResource removes remoteID.
func (c *FakeCatalog) DeleteResource(ctx context.Context, kind, remoteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, CatalogCall{Op: "delete", Kind: kind, RemoteID: remoteID})
	if err := c.popFailure("delete"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := c.resources[remoteID]; !ok {
		return fmt.Errorf("delete %s %s: %w", kind, remoteID, ErrNotFound)
	}
	delete(c.resources, remoteID)
	return nil
}

// Seed adds a resource as if it had been created earlier.
func (c *FakeCatalog) Seed(remoteID string, payload ir.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[remoteID] = payload
}

// Calls returns a copy of every recorded call in order.
func (c *FakeCatalog) Calls() []CatalogCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CatalogCall(nil), c.calls...)
}

// CallsFor returns the recorded calls of one operation.
func (c *FakeCatalog) CallsFor(op string) []CatalogCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CatalogCall
	for _, call := range c.calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Resource returns the payload stored under remoteID.
func (c *FakeCatalog) Resource(remoteID string) (ir.Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.resources[remoteID]
	return p, ok
}

// Len returns the number of stored resources.
func (c *FakeCatalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resources)
}

func (c *FakeCatalog) popFailure(op string) error {
	q := c.failures[op]
	if len(q) == 0 {
		return nil
	}
	c.failures[op] = q[1:]
	return q[0]
}
