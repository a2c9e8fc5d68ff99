package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_EventLifecycle(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/event_lifecycle.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	handles := result.Handles()
	require.Len(t, handles, 3)
	assert.Equal(t, "created", handles[0].Outcome)
	assert.Equal(t, "updated", handles[1].Outcome)
	assert.Equal(t, "deleted", handles[2].Outcome)

	calls := result.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "evt-1", calls[1].RemoteID)
	assert.Nil(t, calls[2].Payload, "delete sends no payload")
}

func TestRun_RetryAfterFailure(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/retry_after_failure.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	handles := result.Handles()
	require.Len(t, handles, 2)
	assert.Equal(t, "REMOTE_CALL_FAILED", handles[0].Code)
	assert.Empty(t, handles[0].RemoteID)
}

func TestRun_SeededDelete(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/seeded_delete.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	handles := result.Handles()
	require.Len(t, handles, 3)
	assert.Equal(t, "noop", handles[1].Outcome)
	assert.Equal(t, "skipped", handles[2].Outcome)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatch
description: "expects the wrong outcome"
site: {base_url: https://kultur.example.com}
mapping: {event: {type: event, mapping: {name: title}}}
remote_ids: [evt-1]
steps:
  - action: insert
    object: {type: event, id: 1, title: "One"}
    expect: {outcome: updated}
  - action: update
    object: {type: event, id: 1, title: "One"}
    expect: {outcome: updated, remote_id: evt-2}
assertions:
  - type: catalog_calls
    op: create
    count: 2
`), "")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `step 1: expected outcome "updated", got "created"`)
	assert.Contains(t, result.Errors[1], `step 2: expected remote id "evt-2", got "evt-1"`)
	assert.Contains(t, result.Errors[2], "Assertion failed: catalog_calls")
}

func TestRun_BadMapping(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_mapping
description: "mapping fails schema validation"
site: {base_url: https://kultur.example.com}
mapping: {event: {type: [not, a, string]}}
steps:
  - action: insert
    object: {type: event, id: 1}
assertions:
  - type: catalog_order
    ops: [create]
`), "")
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load mapping")
}

func TestRun_BadObject(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_object
description: "object without an id"
site: {base_url: https://kultur.example.com}
mapping: {event: {type: event, mapping: {name: title}}}
steps:
  - action: insert
    object: {type: event}
assertions:
  - type: catalog_order
    ops: [create]
`), "")
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}
