package agent

import (
	"slices"

	"github.com/cloudwego/eino/schema"
)

// Log is an immutable conversation transcript. Append returns a new Log and
// leaves the receiver untouched, so every iteration's input can be inspected
// after the run.
type Log struct {
	turns []*schema.Message
}

// NewLog starts a transcript with the given turns.
func NewLog(turns ...*schema.Message) Log {
	return Log{turns: slices.Clone(turns)}
}

// Append returns a new Log with turns added at the end.
func (l Log) Append(turns ...*schema.Message) Log {
	next := make([]*schema.Message, 0, len(l.turns)+len(turns))
	next = append(next, l.turns...)
	next = append(next, turns...)
	return Log{turns: next}
}

// Len returns the number of turns.
func (l Log) Len() int { return len(l.turns) }

// Messages returns a copy of the turns.
func (l Log) Messages() []*schema.Message {
	return slices.Clone(l.turns)
}
