package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStateMachine(t *testing.T) {
	sm := StateMachine{
		"draft":     {"published"},
		"published": {},
	}
	assert.True(t, sm.CanMove("draft", "published"))
	assert.False(t, sm.CanMove("published", "draft"))
	assert.False(t, sm.CanMove("unknown", "draft"))
	assert.True(t, sm.IsTerminal("published"))
	assert.False(t, sm.IsTerminal("draft"))
	assert.False(t, sm.IsTerminal("unknown"))
	assert.True(t, sm.Has("draft"))
}

func TestGuardTransition(t *testing.T) {
	err := GuardTransition(errors.Wrap(ErrStaleWrite, "updating"), "offer", "pending", "accepted")
	assert.True(t, IsTransitionError(err))
	assert.EqualError(t, err, "offer cannot move from pending to accepted")

	other := errors.New("boom")
	assert.Equal(t, other, GuardTransition(other, "offer", "pending", "accepted"))
	assert.NoError(t, GuardTransition(nil, "offer", "pending", "accepted"))
}
