// Package completion decides whether a record still needs work from a stage.
package completion

import (
	"fmt"
	"strings"

	"quill/internal/records"
)

// Status is the three-valued completion state of a record for one stage.
type Status int

const (
	// Pending means at least one required field has never been written.
	Pending Status = iota
	// Retry means a previous attempt failed and left a sentinel behind.
	Retry
	// Done means every required field holds a real value.
	Done
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Retry:
		return "retry"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// NeedsWork reports whether the record should be dispatched to the processor.
func (s Status) NeedsWork() bool {
	return s != Done
}

// Predicate classifies records against a stage's required output fields.
type Predicate struct {
	Required  []string
	Sentinels map[string]string
}

// Validate requires a non-empty sentinel for every required field, which keeps
// "empty" meaning "never attempted".
func (p Predicate) Validate() error {
	if len(p.Required) == 0 {
		return fmt.Errorf("completion: no required fields")
	}
	for _, field := range p.Required {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("completion: blank required field name")
		}
		if p.Sentinels[field] == "" {
			return fmt.Errorf("completion: field %q has no failure sentinel", field)
		}
	}
	return nil
}

// Classify returns Retry when any required field equals its sentinel,
// Pending when any is empty, and Done otherwise. Retry wins over Pending.
func (p Predicate) Classify(rec records.Record) Status {
	pending := false
	for _, field := range p.Required {
		value := rec.Get(field)
		if sentinel, ok := p.Sentinels[field]; ok && sentinel != "" && value == sentinel {
			return Retry
		}
		if value == "" {
			pending = true
		}
	}
	if pending {
		return Pending
	}
	return Done
}

// Satisfied reports whether outputs carries a non-empty value for every
// required field.
func (p Predicate) Satisfied(outputs map[string]string) bool {
	for _, field := range p.Required {
		if outputs[field] == "" {
			return false
		}
	}
	return true
}

// Missing lists required fields absent or empty in outputs.
func (p Predicate) Missing(outputs map[string]string) []string {
	var missing []string
	for _, field := range p.Required {
		if outputs[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// MarkFailed writes the sentinel for every required field into rec.
func (p Predicate) MarkFailed(rec records.Record) {
	for _, field := range p.Required {
		rec[field] = p.Sentinels[field]
	}
}

// Counts tallies records by status.
type Counts struct {
	Pending int `json:"pending"`
	Retry   int `json:"retry"`
	Done    int `json:"done"`
}

// Total returns the number of records counted.
func (c Counts) Total() int {
	return c.Pending + c.Retry + c.Done
}

// Tally classifies every record.
func (p Predicate) Tally(recs []records.Record) Counts {
	var c Counts
	for _, rec := range recs {
		switch p.Classify(rec) {
		case Pending:
			c.Pending++
		case Retry:
			c.Retry++
		default:
			c.Done++
		}
	}
	return c
}
