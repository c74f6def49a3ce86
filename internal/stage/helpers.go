package stage

import (
	"quill/internal/services"
)

// Failure wraps err as a per-record processing failure for the named stage.
// The runner recovers these by writing sentinels; they never abort a run.
func Failure(stage, operation, message string, err error) error {
	return services.Wrap(services.ErrRowProcessing, stage, operation, message, err)
}

// Outputs copies the named fields from values, dropping anything else a
// processor may have computed.
func Outputs(values map[string]string, fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		if v, ok := values[field]; ok {
			out[field] = v
		}
	}
	return out
}
