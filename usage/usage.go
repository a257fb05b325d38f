package usage

import (
	"context"
	"encoding/json"
	"time"
)

// Unbounded is the maximum of a counter that never runs out.
const Unbounded int64 = -1

// Counter is the stored usage of one user. Max is Unbounded for unlimited
// tiers; Refills marks counters reset every calendar month.
type Counter struct {
	UserID      string
	Used        int64
	Max         int64
	Refills     bool
	PeriodStart time.Time
	UpdatedAt   time.Time
}

// Quota returns the caller-facing view of the counter.
func (c Counter) Quota() Quota {
	return Quota{Used: c.Used, Max: c.Max}
}

// Quota is the caller-facing view of a counter.
type Quota struct {
	Used int64
	Max  int64
}

// Unbounded reports whether the quota never runs out.
func (q Quota) Unbounded() bool {
	return q.Max == Unbounded
}

// Remaining returns how many calls are left, or -1 when unbounded.
func (q Quota) Remaining() int64 {
	if q.Unbounded() {
		return Unbounded
	}
	return max(q.Max-q.Used, 0)
}

type quotaJSON struct {
	Used      int64  `json:"used"`
	Max       *int64 `json:"max"`
	Unbounded bool   `json:"unbounded"`
}

// MarshalJSON renders an unbounded maximum as null.
func (q Quota) MarshalJSON() ([]byte, error) {
	out := quotaJSON{Used: q.Used, Unbounded: q.Unbounded()}
	if !out.Unbounded {
		m := q.Max
		out.Max = &m
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON. A null max is unbounded.
func (q *Quota) UnmarshalJSON(b []byte) error {
	var in quotaJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	q.Used = in.Used
	switch {
	case in.Unbounded || in.Max == nil:
		q.Max = Unbounded
	default:
		q.Max = *in.Max
	}
	return nil
}

// Store persists counters.
//
// IncrementCounter must add one only while the counter is unbounded or below
// its maximum, and return ErrQuotaExceeded otherwise.
type Store interface {
	IncrementCounter(ctx context.Context, userID string, at time.Time) (Counter, error)
	GetCounter(ctx context.Context, userID string) (Counter, error)
	// ResetCounter upserts the counter with the given maximum and zero usage.
	ResetCounter(ctx context.Context, userID string, max int64, refills bool, at time.Time) error
	// ResizeCounter changes the maximum and keeps the used count.
	ResizeCounter(ctx context.Context, userID string, max int64, at time.Time) error
	// RefillCounters zeroes refillable counters whose period started at or
	// before cutoff and sets their maximum to the tokens of the user's active
	// tier. Counters of users without a live active tier keep their maximum.
	RefillCounters(ctx context.Context, cutoff, at time.Time) (int64, error)
}
