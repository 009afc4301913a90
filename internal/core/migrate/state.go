package migrate

import (
	"fmt"

	"github.com/agenthands/graphmerge/internal/errors"
)

// State is the migration progress of one absorbed record.
type State int

const (
	Pending State = iota
	EdgesCopied
	RecordRetired
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case EdgesCopied:
		return "edges_copied"
	case RecordRetired:
		return "record_retired"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var next = map[State]State{
	Pending:       EdgesCopied,
	EdgesCopied:   RecordRetired,
	RecordRetired: Done,
}

// Transition returns to when it directly follows from.
func Transition(from, to State) (State, error) {
	if n, ok := next[from]; ok && n == to {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, from, to)
}
