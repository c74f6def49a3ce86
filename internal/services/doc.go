// Package services defines shared utilities consumed by the job runner, the
// row processors, and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, record keys, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that separate fatal
//     source/store failures from per-row failures the runner recovers from.
//
// Use these helpers when wiring new processors so operational behaviour
// (error handling, observability) stays uniform across stages.
package services
