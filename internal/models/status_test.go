package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionTransitions(t *testing.T) {
	tests := []struct {
		from DecisionStatus
		to   DecisionStatus
		ok   bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusPending, false},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusPending, false},
		{StatusRejected, StatusAccepted, false},
		{DecisionStatus("unknown"), StatusAccepted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))

			got, err := tt.from.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tt.from, got)
			}
		})
	}
}

func TestDecisionTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusAccepted.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, DecisionStatus("bogus").Terminal())
}

func TestTeamTransitions(t *testing.T) {
	assert.True(t, TeamOpen.CanTransition(TeamPending))
	assert.True(t, TeamPending.CanTransition(TeamOpen))
	assert.True(t, TeamOpen.CanTransition(TeamOpen))
	assert.False(t, TeamStatus("closed").CanTransition(TeamOpen))
	assert.False(t, TeamOpen.CanTransition(TeamStatus("closed")))

	_, err := TeamStatus("closed").Transition(TeamOpen)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDecisionTarget(t *testing.T) {
	s, err := DecisionAccept.Target()
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, s)

	s, err = DecisionReject.Target()
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, s)

	_, err = Decision("maybe").Target()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemberStatusCounts(t *testing.T) {
	assert.True(t, MemberAccepted.Counts())
	assert.True(t, MemberActive.Counts())
	assert.False(t, MemberPending.Counts())
}
