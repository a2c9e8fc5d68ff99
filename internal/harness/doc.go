// Package harness runs sync scenarios against the engine.
//
// A scenario drives a real engine.Engine with a mapping document, an
// in-memory mirror and a fake catalog, then checks step outcomes, catalog
// calls and the final mirror state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: insert_then_update
//	description: "Second save updates the resource created by the first"
//	mapping_file: ../mapping.yml     # or an inline `mapping:` block
//	site:
//	  base_url: https://kultur.example.com
//	remote_ids: [evt-1]
//	setup:
//	  - object_type: event
//	    local_id: "7"
//	    remote_id: evt-old
//	steps:
//	  - action: insert
//	    object: { type: event, id: 42, title: "Jazz Night" }
//	    expect: { outcome: created, remote_id: evt-1 }
//	  - action: update
//	    object: { type: event, id: 42, title: "Jazz Night (sold out)" }
//	    fail: { op: update, message: "503 Service Unavailable" }
//	    expect: { outcome: failed, code: REMOTE_CALL_FAILED }
//	assertions:
//	  - type: catalog_calls
//	    op: create
//	    count: 1
//	  - type: mirror
//	    object_type: event
//	    local_id: "42"
//	    remote_id: evt-1
//
// # Assertion Types
//
//   - catalog_calls: an operation was called exactly count times
//   - catalog_order: operations were called in this order
//   - mirror: the mirror holds remote_id for an object, or nothing with absent
//   - remote_payload: the fake catalog holds a payload containing expect
//
// # Deterministic Testing
//
// Attempt ids come from a fixed generator and remote ids from the
// scenario's remote_ids list, so traces are stable enough for golden
// comparison.
package harness
