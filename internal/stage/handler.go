package stage

import (
	"context"
	"log/slog"

	"quill/internal/completion"
	"quill/internal/records"
)

// Processor describes the contract the job runner needs from each stage.
//
// Process receives a copy of the record and returns the derived fields to
// store. An error, or outputs missing any field named by Completion, makes the
// runner write the stage's failure sentinels instead.
type Processor interface {
	Name() string
	Completion() completion.Predicate
	Process(context.Context, records.Record) (map[string]string, error)
}

// LoggerAware processors receive the run-scoped logger before the first record.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
