// Package transcript holds the append-only meeting transcript and the
// functions that cut it down to what a backend call can carry.
package transcript

import (
	"fmt"
	"time"

	"llm-meeting/internal/llm"
)

// Kind distinguishes participant statements from moderator recaps.
type Kind string

const (
	KindStatement Kind = "statement"
	KindRecap     Kind = "recap"
)

// Entry is one immutable transcript line.
type Entry struct {
	Speaker   string    `json:"speaker"`
	Persona   string    `json:"persona"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Round     int       `json:"round_number"`
	Model     string    `json:"model_name"`
	Kind      Kind      `json:"kind"`
	Failed    bool      `json:"failed,omitempty"`
}

// FailureEntry records that speaker could not produce a statement. Failure
// entries stay in the log for audit but never reach a prompt.
func FailureEntry(speaker, persona, model string, round int, err error, at time.Time) Entry {
	return Entry{
		Speaker:   speaker,
		Persona:   persona,
		Content:   fmt.Sprintf("(could not speak due to an error: %s. See logs for details.)", llm.Classify(err)),
		Timestamp: at,
		Round:     round,
		Model:     model,
		Kind:      KindStatement,
		Failed:    true,
	}
}

// Log is an append-only ordered transcript. The zero value is ready to use.
type Log struct {
	entries []Entry
}

// Append adds e at the end.
func (l *Log) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// Len returns the number of entries, failures included.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of every entry in order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Valid returns the entries that are not failures, in order.
func Valid(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Failed {
			out = append(out, e)
		}
	}
	return out
}
