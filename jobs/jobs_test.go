package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/jobs"
)

type mockRefiller struct {
	mock.Mock
}

func (m *mockRefiller) RefillDue(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestNew_InvalidSchedule(t *testing.T) {
	t.Parallel()
	_, err := jobs.New(jobs.Config{RefillSchedule: "every now and then"}, &mockRefiller{}, nil)
	assert.Error(t, err)
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	r := &mockRefiller{}
	r.On("RefillDue", mock.Anything).Return(int64(2), nil).Once()
	r.On("RefillDue", mock.Anything).Return(int64(0), errors.New("db down")).Once()

	s, err := jobs.New(jobs.Config{RefillSchedule: "@hourly", Timeout: time.Second}, r, nil)
	require.NoError(t, err)

	s.RunNow()
	s.RunNow()
	r.AssertExpectations(t)
}

func TestScheduler_Run(t *testing.T) {
	t.Parallel()

	s, err := jobs.New(jobs.Config{RefillSchedule: "@yearly"}, &mockRefiller{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
