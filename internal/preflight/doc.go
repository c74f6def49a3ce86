// Package preflight provides readiness checks for the files, directories,
// and external services a processing run depends on.
//
// The fetch and tag commands call RunAll before starting a run and refuse to
// start when a required check fails; --skip-preflight bypasses them.
package preflight
