// Package billing moves users between tiers. Free tiers are activated on the
// spot; paid tiers go through a hosted checkout at the payment processor and
// are activated only when the processor's signed confirmation arrives. The
// processor is the source of truth for payment outcomes and its
// confirmations are idempotent per checkout session.
package billing
