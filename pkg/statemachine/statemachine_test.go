package statemachine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/pkg/statemachine"
)

type door string
type action string

const (
	closed door = "closed"
	open   door = "open"
	locked door = "locked"

	push   action = "push"
	pull   action = "pull"
	turnOn action = "lock"
)

func newDoor(t *testing.T) *statemachine.Machine[door, action] {
	t.Helper()
	m, err := statemachine.New(
		statemachine.T(closed, open, push),
		statemachine.T(open, closed, pull),
		statemachine.T(closed, locked, turnOn),
	)
	require.NoError(t, err)
	return m
}

func TestMachine_Fire(t *testing.T) {
	t.Parallel()

	m := newDoor(t)

	tests := []struct {
		from    door
		event   action
		want    door
		wantErr bool
	}{
		{closed, push, open, false},
		{open, pull, closed, false},
		{closed, turnOn, locked, false},
		{open, turnOn, open, true},
		{locked, push, locked, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			t.Parallel()

			got, err := m.Fire(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, statemachine.ErrNoTransition)

			var te *statemachine.TransitionError[door, action]
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.from, te.From)
			assert.Equal(t, tt.event, te.Event)
		})
	}
}

func TestMachine_CanFireAndTerminal(t *testing.T) {
	t.Parallel()

	m := newDoor(t)

	assert.True(t, m.CanFire(closed, push))
	assert.False(t, m.CanFire(open, push))
	assert.True(t, m.Terminal(locked))
	assert.False(t, m.Terminal(closed))
}

func TestNew_Duplicate(t *testing.T) {
	t.Parallel()

	_, err := statemachine.New(
		statemachine.T(closed, open, push),
		statemachine.T(closed, locked, push),
	)
	assert.ErrorIs(t, err, statemachine.ErrDuplicateTransition)

	assert.Panics(t, func() {
		statemachine.MustNew(
			statemachine.T(closed, open, push),
			statemachine.T(closed, open, push),
		)
	})
}
