package cache

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/querycache/logger"
	"github.com/cockroachdb/errors"
)

// Sweeper periodically deletes expired rows from table providers. Run a
// single Sweeper per process; it sweeps its targets one after another.
type Sweeper struct {
	targets   []Sweepable
	cfg       options
	logger    logger.Logger
	mu        sync.Mutex
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
}

// NewSweeper returns a Sweeper over targets. The interval comes from
// WithSweepInterval and defaults to DefaultSweepInterval.
func NewSweeper(targets []Sweepable, opts ...Option) *Sweeper {
	cfg := applyOptions(opts)
	if cfg.sweepInterval <= 0 {
		cfg.sweepInterval = DefaultSweepInterval
	}
	return &Sweeper{
		targets: targets,
		cfg:     cfg,
		logger:  cfg.logger.WithPrefix("[cache-gc]"),
	}
}

// Interval returns the time between sweeps.
func (s *Sweeper) Interval() time.Duration {
	return s.cfg.sweepInterval
}

// SweepOnce runs one pass over every target and returns the number of rows
// deleted. A failing target does not stop the pass; all failures are
// returned combined.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	var total int64
	var errs error
	for _, t := range s.targets {
		n, err := t.DeleteExpired(ctx)
		if err != nil {
			s.cfg.metrics.GCFailures.WithLabelValues(t.Name()).Inc()
			s.logger.Error("failed to clear expired cache of %s: %v", t.Name(), err)
			errs = errors.CombineErrors(errs, err)
			continue
		}
		total += n
		s.cfg.metrics.GCDeletedRows.WithLabelValues(t.Name()).Add(float64(n))
		if n > 0 {
			s.logger.Info("cleared %d expired rows from %s", n, t.Name())
		}
	}
	return total, errs
}

// Run sweeps immediately and then once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.sweepInterval)
	defer ticker.Stop()
	for round := 1; ; round++ {
		s.logger.Debug("sweep round %d", round)
		_, _ = s.SweepOnce(ctx)
		s.logger.Debug("next sweep at %s", s.cfg.now().Add(s.cfg.sweepInterval).Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start runs the sweeper in a background goroutine until Close is called or
// parent is done. Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.Run(ctx)
	}()
}

// Close stops a started sweeper and waits for the current sweep to end.
func (s *Sweeper) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.waitGroup.Wait()
	return nil
}
