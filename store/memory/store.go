package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

// Compile-time interface checks.
var (
	_ catalog.Store           = (*Store)(nil)
	_ tier.Store              = (*Store)(nil)
	_ subscription.Store      = (*Store)(nil)
	_ usage.Store             = (*Store)(nil)
	_ billing.PaymentStore    = (*Store)(nil)
	_ audit.Storage           = (*Store)(nil)
	_ tier.Transactor         = (*Store)(nil)
	_ subscription.Transactor = (*Store)(nil)
	_ billing.Transactor      = (*Store)(nil)
)

type data struct {
	products      map[uuid.UUID]catalog.Product
	tiers         map[uuid.UUID]tier.Tier
	subscriptions map[uuid.UUID]subscription.Subscription
	counters      map[string]usage.Counter
	payments      map[string]billing.Payment
	events        []audit.Event
}

func newData() data {
	return data{
		products:      make(map[uuid.UUID]catalog.Product),
		tiers:         make(map[uuid.UUID]tier.Tier),
		subscriptions: make(map[uuid.UUID]subscription.Subscription),
		counters:      make(map[string]usage.Counter),
		payments:      make(map[string]billing.Payment),
	}
}

// clone copies the maps. Values are copied by assignment; the slices they
// hold are never mutated in place, only replaced.
func (d data) clone() data {
	return data{
		products:      maps.Clone(d.products),
		tiers:         maps.Clone(d.tiers),
		subscriptions: maps.Clone(d.subscriptions),
		counters:      maps.Clone(d.counters),
		payments:      maps.Clone(d.payments),
		events:        slices.Clone(d.events),
	}
}

// Store keeps every table in process memory. It backs tests and single-node
// development; all writers are serialised by one mutex.
type Store struct {
	mu sync.Mutex
	d  data
}

// New returns an empty store.
func New() *Store {
	return &Store{d: newData()}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the store lock unless ctx already belongs to a transaction on s.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx runs fn with exclusive access to the store. Data is restored when
// fn returns an error or panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	defer func() {
		if p := recover(); p != nil {
			s.d = snapshot
			panic(p)
		}
		if err != nil {
			s.d = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}
