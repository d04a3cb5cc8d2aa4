// Package statemachine describes finite state machines as immutable
// transition tables. A Machine holds no current state; callers keep the
// state in their own records and ask the machine for the next one.
//
//	m := statemachine.MustNew(
//		statemachine.T(Pending, Sent, Deliver),
//		statemachine.T(Pending, Failed, Exhaust),
//	)
//	next, err := m.Fire(record.Status, Deliver)
package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition        = errors.New("no transition available")
	ErrDuplicateTransition = errors.New("duplicate transition")
)

// TransitionError reports the state and event that had no transition.
type TransitionError[S, E comparable] struct {
	From  S
	Event E
}

func (e *TransitionError[S, E]) Error() string {
	return fmt.Sprintf("no transition from %v on %v", e.From, e.Event)
}

func (e *TransitionError[S, E]) Unwrap() error { return ErrNoTransition }

// Transition is one edge of the machine.
type Transition[S, E comparable] struct {
	From  S
	To    S
	Event E
}

// T is shorthand for building a Transition.
func T[S, E comparable](from, to S, event E) Transition[S, E] {
	return Transition[S, E]{From: from, To: to, Event: event}
}

type Machine[S, E comparable] struct {
	edges map[S]map[E]S
}

// New builds a machine; the same (from, event) pair may appear only once.
func New[S, E comparable](transitions ...Transition[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{edges: make(map[S]map[E]S)}
	for _, t := range transitions {
		byEvent, ok := m.edges[t.From]
		if !ok {
			byEvent = make(map[E]S)
			m.edges[t.From] = byEvent
		}
		if _, dup := byEvent[t.Event]; dup {
			return nil, fmt.Errorf("%w: %v on %v", ErrDuplicateTransition, t.From, t.Event)
		}
		byEvent[t.Event] = t.To
	}
	return m, nil
}

// MustNew is New for package-level tables; it panics on error.
func MustNew[S, E comparable](transitions ...Transition[S, E]) *Machine[S, E] {
	m, err := New(transitions...)
	if err != nil {
		panic(err)
	}
	return m
}

// Fire returns the state reached from `from` on event.
func (m *Machine[S, E]) Fire(from S, event E) (S, error) {
	if to, ok := m.edges[from][event]; ok {
		return to, nil
	}
	return from, &TransitionError[S, E]{From: from, Event: event}
}

func (m *Machine[S, E]) CanFire(from S, event E) bool {
	_, ok := m.edges[from][event]
	return ok
}

// Terminal reports whether no transition leaves s.
func (m *Machine[S, E]) Terminal(s S) bool {
	return len(m.edges[s]) == 0
}
