// Package stage defines the per-record processor contract shared by the
// fetch and tag stages.
package stage
