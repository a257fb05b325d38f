// Package statemachine implements small, typed finite state machines.
//
// A Definition is an immutable transition table built once at start-up.
// Each workflow instance gets its own Machine via Definition.Start, so a
// machine is cheap, short-lived and never shared between goroutines that
// do not already coordinate.
//
//	def := statemachine.NewDefinition[State, Event](
//		statemachine.Transition[State, Event]{From: Requested, Event: Pay, To: Pending, Actions: ...},
//	)
//	m := def.Start(Requested)
//	if err := m.Fire(ctx, Pay, req); err != nil { ... }
//
// Guards are evaluated in declaration order and the first transition whose
// guards all pass is taken. Actions run before the state changes; an action
// error leaves the machine in its previous state.
package statemachine
