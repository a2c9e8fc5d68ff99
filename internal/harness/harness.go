package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/engine"
	"github.com/roach88/eventpush/internal/ir"
	"github.com/roach88/eventpush/internal/mapping"
	"github.com/roach88/eventpush/internal/site"
	"github.com/roach88/eventpush/internal/store"
	"github.com/roach88/eventpush/internal/testutil"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store   *store.Store
	catalog *testutil.FakeCatalog
	engine  *engine.Engine
	logger  *slog.Logger

	// seen is how many catalog calls are already in the trace.
	seen int
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh in-memory mirror and fake catalog. An error means
// the scenario could not be set up; failed expectations are reported in
// the result instead.
func Run(scenario *Scenario) (*Result, error) {
	set, err := loadMapping(scenario)
	if err != nil {
		return nil, err
	}

	s, err := site.New(scenario.Site.BaseURL, scenario.Site.CanonicalPath, scenario.Site.FilesBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	attemptIDs := make([]string, len(scenario.Steps))
	for i := range attemptIDs {
		attemptIDs[i] = fmt.Sprintf("attempt-%d", i+1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := testutil.NewFakeCatalog(scenario.RemoteIDs...)
	h := &Harness{
		store:   st,
		catalog: cat,
		engine: engine.New(set, st, cat, s,
			engine.WithLogger(logger),
			engine.WithIDGenerator(engine.NewFixedGenerator(attemptIDs...)),
		),
		logger: logger,
	}

	ctx := context.Background()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	actx := &AssertionContext{Store: st, Catalog: cat, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func loadMapping(scenario *Scenario) (*mapping.Set, error) {
	if scenario.MappingFile != "" {
		set, err := mapping.Load(scenario.MappingFile)
		if err != nil {
			return nil, fmt.Errorf("load mapping: %w", err)
		}
		return set, nil
	}

	data, err := yaml.Marshal(&scenario.Mapping)
	if err != nil {
		return nil, fmt.Errorf("encode inline mapping: %w", err)
	}
	set, err := mapping.Parse(scenario.Name+" (inline mapping)", data)
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	return set, nil
}

// executeSetup seeds the mirror and the fake catalog with already synced
// objects. Seeds bypass the engine and produce no trace.
func (h *Harness) executeSetup(ctx context.Context, setup []SeedStep) error {
	for i, seed := range setup {
		kind := seed.Kind
		if kind == "" {
			kind = seed.ObjectType
		}
		h.catalog.Seed(seed.RemoteID, ir.Object{})
		snapshot := ir.Object{"id": ir.String(seed.RemoteID), "kind": ir.String(kind)}
		if err := h.store.Upsert(ctx, seed.ObjectType, seed.LocalID, seed.RemoteID, snapshot); err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
	}
	return nil
}

// executeSteps hands each step's object to the engine and checks the
// step's expect clause against the engine's result.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		obj, err := decodeObject(step.Object)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		if step.Fail != nil {
			h.catalog.FailNext(step.Fail.Op, errors.New(step.Fail.Message))
		}

		res := h.engine.Handle(ctx, obj, engine.Action(step.Action))

		h.recordCalls(result)
		ev := TraceEvent{
			Type:       EventHandle,
			Step:       i + 1,
			Action:     step.Action,
			ObjectType: res.ObjectType,
			LocalID:    res.LocalID,
			Outcome:    string(res.Outcome),
			RemoteID:   res.RemoteID,
		}
		var serr *engine.SyncError
		if errors.As(res.Err, &serr) {
			ev.Code = string(serr.Code)
		}
		result.add(ev)

		if step.Expect != nil {
			if msg := checkExpect(i, step.Expect, ev); msg != "" {
				result.AddError(msg)
			}
		}

		h.logger.Info("step completed",
			"step", i,
			"action", step.Action,
			"outcome", res.Outcome,
			"remote_id", res.RemoteID,
		)
	}
	return nil
}

// recordCalls appends the catalog calls made since the last step.
func (h *Harness) recordCalls(result *Result) {
	calls := h.catalog.Calls()
	for _, c := range calls[h.seen:] {
		result.add(TraceEvent{
			Type:     EventCall,
			Op:       c.Op,
			Kind:     c.Kind,
			RemoteID: c.RemoteID,
			Payload:  c.Payload,
		})
	}
	h.seen = len(calls)
}

func checkExpect(index int, want *ExpectClause, got TraceEvent) string {
	switch {
	case want.Outcome != got.Outcome:
		return fmt.Sprintf("step %d: expected outcome %q, got %q (code %q)", index+1, want.Outcome, got.Outcome, got.Code)
	case want.RemoteID != "" && want.RemoteID != got.RemoteID:
		return fmt.Sprintf("step %d: expected remote id %q, got %q", index+1, want.RemoteID, got.RemoteID)
	case want.Code != "" && want.Code != got.Code:
		return fmt.Sprintf("step %d: expected code %q, got %q", index+1, want.Code, got.Code)
	}
	return ""
}

// decodeObject turns a YAML object document into a content node by way of
// the JSON document format.
func decodeObject(doc map[string]any) (*content.Node, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	return content.Decode(bytes.NewReader(data))
}
