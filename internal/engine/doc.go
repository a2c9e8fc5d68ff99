// Package engine keeps a remote catalog in step with local content objects.
//
// The host calls Handle from its save and delete hooks. Each call runs one
// change end to end:
//
//  1. CanHandle: a mapping must exist for the object's type, otherwise the
//     call is skipped. Untracked types are expected and are not errors.
//  2. The mirror record for (type, local id) is looked up.
//  3. Delete with no record is a no-op. Delete with a record calls the
//     catalog, then drops the record.
//  4. Insert and update build the payload (mapping output plus the canonical
//     url). With no record the resource is created and the returned remote id
//     stored; with a record the existing resource is updated.
//
// The mirror is written only after the catalog call succeeds, so a failed
// call leaves the object in its previous state and the next save retries.
// Nothing is retried inside the engine.
//
// SYNC STATES:
//
// States are inferred from the mirror, not stored:
//
//	UNSYNCED --create--> SYNCED --update--> SYNCED --delete--> UNSYNCED
//
// CONCURRENCY:
//
// Handle may be called from many goroutines. Calls for the same
// (type, local id) are serialized by a keyed mutex, so two concurrent saves
// of a new object produce one create and one update, never two creates. The
// store's upsert is a single conditional write as a second line of defence
// across processes.
//
// Every attempt gets a UUIDv7 attempt id and a monotonic Seq for log
// correlation.
package engine
