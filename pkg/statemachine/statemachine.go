package statemachine

import (
	"context"
	"sync"
)

// Name is the constraint for state and event identifiers.
type Name interface{ ~string }

// Action runs while a transition is taken. An error aborts the transition.
type Action[S, E Name] func(ctx context.Context, from, to S, event E, data any) error

// Guard decides whether a transition applies.
type Guard[S, E Name] func(ctx context.Context, from S, event E, data any) bool

// Transition moves From to To on Event. Several transitions may share From and
// Event; the first whose guards all pass is taken.
type Transition[S, E Name] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // all must pass
	Actions []Action[S, E] // run in order before the state changes
}

type transitionKey[S, E Name] struct {
	from  S
	event E
}

// Definition is a transition table. It is safe for concurrent use once built.
type Definition[S, E Name] struct {
	table map[transitionKey[S, E]][]Transition[S, E]
}

// NewDefinition builds a transition table. Order matters among transitions
// that share a state and event.
func NewDefinition[S, E Name](transitions ...Transition[S, E]) *Definition[S, E] {
	d := &Definition[S, E]{table: make(map[transitionKey[S, E]][]Transition[S, E], len(transitions))}
	for _, t := range transitions {
		k := transitionKey[S, E]{from: t.From, event: t.Event}
		d.table[k] = append(d.table[k], t)
	}
	return d
}

// Events lists the events that have at least one transition out of state.
func (d *Definition[S, E]) Events(state S) []E {
	var out []E
	for k := range d.table {
		if k.from == state {
			out = append(out, k.event)
		}
	}
	return out
}

// Start creates a machine positioned at initial.
func (d *Definition[S, E]) Start(initial S) *Machine[S, E] {
	return &Machine[S, E]{def: d, current: initial}
}

// Machine is one run through a Definition.
type Machine[S, E Name] struct {
	def *Definition[S, E]

	mu      sync.Mutex
	current S
	history []S
}

// Current returns the state the machine is in.
func (m *Machine[S, E]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns every state the machine has left, oldest first.
func (m *Machine[S, E]) History() []S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]S(nil), m.history...)
}

// Fire applies event. It returns *NoTransitionError when the table has no
// entry, *RejectedError when every candidate was vetoed by a guard and
// *ActionError when an action failed.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.match(ctx, event, data)
	if err != nil {
		return err
	}

	for _, action := range t.Actions {
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return &ActionError{From: string(m.current), To: string(t.To), Event: string(event), Err: err}
		}
	}

	m.history = append(m.history, m.current)
	m.current = t.To
	return nil
}

// CanFire reports whether Fire would find a transition. Actions are not run.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E, data any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.match(ctx, event, data)
	return err == nil
}

func (m *Machine[S, E]) match(ctx context.Context, event E, data any) (Transition[S, E], error) {
	candidates := m.def.table[transitionKey[S, E]{from: m.current, event: event}]
	if len(candidates) == 0 {
		return Transition[S, E]{}, &NoTransitionError{State: string(m.current), Event: string(event)}
	}

next:
	for _, t := range candidates {
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, m.current, event, data) {
				continue next
			}
		}
		return t, nil
	}
	return Transition[S, E]{}, &RejectedError{State: string(m.current), Event: string(event)}
}
