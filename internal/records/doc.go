// Package records loads and writes the CSV store processed by quill.
//
// A RecordSet keeps records in file order, indexes them by a configured key
// column, and tracks a Schema that only grows: fields introduced by a stage
// are appended after the existing columns. Writes replace the store
// atomically so a crash never leaves a truncated file behind.
package records
