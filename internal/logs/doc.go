// Package logs reads the quill log file for the `quill logs` command.
//
// Tail returns the last lines of the file, or the lines appended after a
// known offset, optionally keeping only lines that mention a run id or
// record key. Follow mode polls until new lines arrive or the wait elapses.
package logs
