package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/querycache/logger"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSweepable struct {
	name   string
	n      int64
	err    error
	sweeps atomic.Int32
}

func (s *stubSweepable) Name() string {
	return s.name
}

func (s *stubSweepable) DeleteExpired(context.Context) (int64, error) {
	s.sweeps.Add(1)
	return s.n, s.err
}

func TestSweepOnce(t *testing.T) {
	clock := newFakeClock()
	db := newTestDB(t)
	ctx := context.Background()
	appendTable := newTestAppendTable(t, db, WithClock(clock.Now))
	upsertTable := newTestUpsertTable(t, db, WithClock(clock.Now))
	require.NoError(t, appendTable.Set(ctx, "a", []byte("v"), 1))
	require.NoError(t, appendTable.Set(ctx, "b", []byte("v"), NoExpiry))
	require.NoError(t, upsertTable.Set(ctx, "a", []byte("v"), 1))
	clock.Advance(2 * time.Second)

	m := NewMetrics(nil)
	log := logger.NewTestLogger()
	s := NewSweeper([]Sweepable{appendTable, upsertTable}, WithMetrics(m), WithLogger(log))
	n, err := s.SweepOnce(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GCDeletedRows.WithLabelValues(DefaultAppendTable)))
	assert.True(t, log.Contains("INFO", "cleared 1 expired rows from query_cache"))

	_, found, err := appendTable.Get(ctx, "b")
	assert.NoError(t, err)
	assert.True(t, found)
}

func TestSweepOnceContinuesAfterFailure(t *testing.T) {
	m := NewMetrics(nil)
	broken := &stubSweepable{name: "broken", err: errors.New("no such table: broken")}
	ok := &stubSweepable{name: "ok", n: 3}
	s := NewSweeper([]Sweepable{broken, ok}, WithMetrics(m))

	n, err := s.SweepOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int32(1), ok.sweeps.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GCFailures.WithLabelValues("broken")))
}

func TestSweeperRun(t *testing.T) {
	target := &stubSweepable{name: "t"}
	s := NewSweeper([]Sweepable{target}, WithSweepInterval(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, s.Interval())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return target.sweeps.Load() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperStartClose(t *testing.T) {
	target := &stubSweepable{name: "t"}
	s := NewSweeper([]Sweepable{target}, WithSweepInterval(time.Hour))
	assert.Equal(t, DefaultSweepInterval, NewSweeper(nil).Interval())

	s.Start(context.Background())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return target.sweeps.Load() == 1 }, 5*time.Second, time.Millisecond)
	assert.NoError(t, s.Close())
	assert.Equal(t, int32(1), target.sweeps.Load())
}
