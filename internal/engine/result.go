package engine

import (
	"fmt"

	"github.com/roach88/eventpush/internal/ir"
)

// Action is the host-side change that triggered a handle call.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q (want insert, update or delete)", s)
}

// Outcome is what a handle call did.
type Outcome string

const (
	// OutcomeSkipped means no mapping exists for the object's type.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeNoop means a delete for an object that was never synced.
	OutcomeNoop Outcome = "noop"

	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeDeleted Outcome = "deleted"
	OutcomeFailed  Outcome = "failed"
)

// Result describes one handle call.
type Result struct {
	AttemptID string
	Seq       int64

	ObjectType string
	LocalID    string
	Action     Action
	Outcome    Outcome

	// RemoteID of the resource created, updated or deleted.
	RemoteID string

	// Payload sent to the catalog, if any.
	Payload ir.Object

	// Err is a *SyncError when Outcome is OutcomeFailed.
	Err error
}

// OK reports whether the call completed without error.
func (r Result) OK() bool { return r.Err == nil }
