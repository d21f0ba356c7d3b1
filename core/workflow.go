package core

import "github.com/pkg/errors"

// ErrStaleWrite is returned by guarded updates ("... WHERE id = ? AND status = ?") that matched no row.
var ErrStaleWrite = errors.New("row changed concurrently")

// StateMachine lists, per status, the statuses it may move to.
// A status without successors is terminal.
type StateMachine map[string][]string

func (sm StateMachine) Has(status string) bool {
	_, ok := sm[status]
	return ok
}

func (sm StateMachine) CanMove(from, to string) bool {
	return StringInSlice(to, sm[from])
}

func (sm StateMachine) IsTerminal(status string) bool {
	return sm.Has(status) && len(sm[status]) == 0
}

// GuardTransition maps a stale guarded write to a TransitionError.
func GuardTransition(err error, entity, from, to string) error {
	if errors.Cause(err) == ErrStaleWrite {
		return NewTransitionError(entity, from, to)
	}
	return err
}
