// Package checkpoint implements the append-only progress log written while a
// job runs and the merge that folds it back into the record store.
//
// The log lives next to the store as "<base>_result<ext>". It is CSV whose
// first cell names the row kind: "schema" rows declare the field order and
// "entry" rows hold one record snapshot each. Every run starts with a schema
// row, and a run writes another one when its outputs add fields. Merge is
// idempotent: it may be repeated after a crash at any point and converges on
// the same store.
package checkpoint
