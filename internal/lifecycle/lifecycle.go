// Package lifecycle holds the session state machine. The store consults it
// under the per-session lock before every mutation.
package lifecycle

import (
	"errors"
	"fmt"

	"warnet/backend/internal/model"
)

type State string

const (
	None            State = "none"
	Active          State = "active"
	AwaitingPayment State = "awaiting_payment"
	Archived        State = "archived"
	Deleted         State = "deleted"
)

type Action string

const (
	Add           Action = "add"
	Extend        Action = "extend"
	Complete      Action = "complete"
	RecordPayment Action = "record_payment"
	Finalize      Action = "finalize"
	Remove        Action = "remove"
)

var ErrInvalidTransition = errors.New("invalid transition")

var transitions = map[State]map[Action]State{
	None: {
		Add: Active,
	},
	Active: {
		Extend:        Active,
		Complete:      AwaitingPayment,
		RecordPayment: Active,
		Remove:        Deleted,
	},
	AwaitingPayment: {
		RecordPayment: AwaitingPayment,
		Finalize:      Archived,
		Remove:        Deleted,
	},
}

func Next(from State, action Action) (State, error) {
	to, ok := transitions[from][action]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s a session that is %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Of maps a stored session to its lifecycle state.
func Of(s model.Session) State {
	if s.Completed() {
		return AwaitingPayment
	}
	return Active
}
