package harness

import "github.com/roach88/eventpush/internal/ir"

// Trace event types.
const (
	EventHandle = "handle"
	EventCall   = "call"
)

// TraceEvent is one handle call or one catalog call made while running a
// scenario. Catalog calls come before the handle event that caused them.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Handle events.
	Step       int    `json:"step,omitempty"`
	Action     string `json:"action,omitempty"`
	ObjectType string `json:"object_type,omitempty"`
	LocalID    string `json:"local_id,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Code       string `json:"code,omitempty"`

	// Catalog call events.
	Op      string    `json:"op,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Payload ir.Object `json:"payload,omitempty"`

	RemoteID string `json:"remote_id,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Handles returns the handle events in order.
func (r *Result) Handles() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventHandle {
			out = append(out, ev)
		}
	}
	return out
}

// Calls returns the catalog call events in order.
func (r *Result) Calls() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventCall {
			out = append(out, ev)
		}
	}
	return out
}
