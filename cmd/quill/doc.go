// Package main hosts the quill CLI entrypoint and command graph.
//
// The Cobra command tree exposes the two processing stages (fetch and tag)
// over a CSV article store, plus maintenance commands to merge a leftover
// checkpoint log, report completion status, list run history, and scaffold
// configuration. Configuration and logging are resolved lazily through a
// shared command context so subcommands only wire the stage they run.
//
// New behavior belongs in the internal packages first; commands here should
// stay thin translations from flags to those packages.
package main
