// Package job runs a single stage over a CSV record store with checkpointing.
//
// A run moves through four phases. MERGING_IN folds any checkpoint log left by
// an interrupted run into the store. ITERATING walks the records in order;
// records the stage's completion predicate reports as done are appended to
// the log unchanged, the rest are dispatched to the processor under a per-call
// timeout and appended with either the derived fields or the stage's failure
// sentinels, followed by a random pause. MERGING_OUT folds the log back into
// the store, and runs even when the run was cancelled. FINISHED releases the
// store lock and records the summary.
//
// Only one run may hold a store at a time; an advisory lock file next to the
// store enforces this.
package job
