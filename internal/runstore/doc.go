// Package runstore records the history of job runs in a small SQLite
// database under the state directory.
//
// Each run is inserted when it starts and updated with its counters and final
// state when it finishes, so a crashed run remains visible as "running". The
// schema is embedded and versioned; a mismatched database must be deleted.
package runstore
