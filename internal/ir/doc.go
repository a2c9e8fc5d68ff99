// Package ir provides the payload value model for eventpush.
//
// Payloads sent to the remote catalog, literal defaults from the mapping
// document and mirror snapshots are all trees of ir.Value. ir imports
// nothing internal, so every other package can depend on it.
//
// Key design constraints:
//   - Value is sealed: Null, String, Int, Float, Bool, Array, Object
//   - A payload never references the content object it was built from
//   - Canonical JSON (sorted keys, NFC strings) is the only form used for
//     hashing and golden comparison
package ir
