package billing

import "github.com/spongetheory/marketplace/pkg/statemachine"

// State of a tier change.
type State string

const (
	StateRequested         State = "requested"
	StateActivated         State = "activated"
	StateCheckoutPending   State = "checkout_pending"
	StateCheckoutComplete  State = "checkout_complete"
	StateCheckoutFailed    State = "checkout_failed"
	StateCheckoutAbandoned State = "checkout_abandoned"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition is expected for this change.
func (s State) Terminal() bool {
	return s == StateActivated || s == StateCheckoutAbandoned
}

type event string

const (
	evSelectTier       event = "select_tier"
	evConfirmPaid      event = "confirm_paid"
	evConfirmFailed    event = "confirm_failed"
	evConfirmAbandoned event = "confirm_abandoned"
	evActivate         event = "activate"
	evRetry            event = "retry"
)

type (
	transition = statemachine.Transition[State, event]
	guard      = statemachine.Guard[State, event]
	action     = statemachine.Action[State, event]
)

// newFlow builds the tier change machine. Selecting a tier resolves to, in
// order: a no-op when it is already active, an immediate activation when it
// is free, otherwise a hosted checkout. Checkout outcomes come back later
// through reconciliation.
func (o *Orchestrator) newFlow() *statemachine.Definition[State, event] {
	return statemachine.NewDefinition(
		transition{From: StateRequested, Event: evSelectTier, To: StateActivated,
			Guards: []guard{isAlreadyActive}},
		transition{From: StateRequested, Event: evSelectTier, To: StateActivated,
			Guards: []guard{isFreeTier}, Actions: []action{o.activateFree}},
		transition{From: StateRequested, Event: evSelectTier, To: StateCheckoutPending,
			Actions: []action{o.openCheckout}},

		transition{From: StateCheckoutPending, Event: evConfirmPaid, To: StateCheckoutComplete,
			Actions: []action{o.recordPayment(PaymentCompleted)}},
		transition{From: StateCheckoutComplete, Event: evActivate, To: StateActivated,
			Actions: []action{o.activatePaid}},

		transition{From: StateCheckoutPending, Event: evConfirmFailed, To: StateCheckoutFailed,
			Actions: []action{o.recordPayment(PaymentFailed)}},
		transition{From: StateCheckoutFailed, Event: evRetry, To: StateRequested},

		transition{From: StateCheckoutPending, Event: evConfirmAbandoned, To: StateCheckoutAbandoned,
			Actions: []action{o.recordPayment(PaymentAbandoned)}},
	)
}
