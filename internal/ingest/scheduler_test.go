package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingPasser struct {
	passes atomic.Int32
	err    error
}

func (c *countingPasser) Ingest(context.Context) (Stats, error) {
	c.passes.Add(1)
	return Stats{}, c.err
}

func TestScheduler_NotifyTriggersPass(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &countingPasser{err: errors.New("transient")}
	s := NewScheduler(p, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return p.passes.Load() == 1 }, time.Second, time.Millisecond, "initial pass")

	s.Notify()
	require.Eventually(t, func() bool { return p.passes.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_NotifyCoalesces(t *testing.T) {
	s := NewScheduler(&countingPasser{}, 0, nil)
	for range 10 {
		s.Notify()
	}
	assert.Len(t, s.wake, 1)
}

func TestScheduler_Polls(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &countingPasser{}
	s := NewScheduler(p, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return p.passes.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
