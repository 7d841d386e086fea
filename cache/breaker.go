package cache

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/querycache/logger"
	"github.com/cockroachdb/errors"
)

// ErrBreakerOpen is returned by a BreakerProvider while its backend is
// considered down. Caches treat it like any other read failure: as a miss.
var ErrBreakerOpen = errors.New("cache: provider circuit breaker is open")

// BreakerState is the state of a BreakerProvider.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	case BreakerOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig tunes a BreakerProvider.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before letting a trial call through.
	Cooldown time.Duration
	// SuccessThreshold is the number of successful trial calls that close it again.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the configuration used when fields are zero.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 1,
	}
}

// BreakerProvider wraps a network backed Provider. After MaxFailures
// consecutive failures it stops calling the backend for Cooldown and fails
// fast with ErrBreakerOpen, so an unreachable backend costs loads nothing but
// a miss instead of a timeout each.
type BreakerProvider struct {
	inner  Provider
	cfg    BreakerConfig
	now    func() time.Time
	logger logger.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	inTrial   bool
}

var _ Provider = (*BreakerProvider)(nil)

// NewBreakerProvider wraps inner with a circuit breaker.
func NewBreakerProvider(inner Provider, cfg BreakerConfig, opts ...Option) *BreakerProvider {
	def := DefaultBreakerConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	o := applyOptions(opts)
	return &BreakerProvider{
		inner:  inner,
		cfg:    cfg,
		now:    o.now,
		logger: o.logger.WithPrefix("[cache-breaker]").With(map[string]interface{}{"provider": inner.Kind().String()}),
	}
}

func (b *BreakerProvider) Kind() Kind {
	return b.inner.Kind()
}

// Unwrap returns the wrapped provider.
func (b *BreakerProvider) Unwrap() Provider {
	return b.inner
}

// State returns the current breaker state.
func (b *BreakerProvider) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	trial, err := b.allow()
	if err != nil {
		return nil, false, err
	}
	data, found, err := b.inner.Get(ctx, key)
	b.record(trial, err)
	return data, found, err
}

func (b *BreakerProvider) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	trial, err := b.allow()
	if err != nil {
		return err
	}
	err = b.inner.Set(ctx, key, value, ttlSeconds)
	b.record(trial, err)
	return err
}

// allow decides whether a call may reach the backend. trial is true for the
// single call let through while half open.
func (b *BreakerProvider) allow() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return false, nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.successes = 0
		b.logger.Info("cooldown elapsed, retrying backend")
	}
	if b.inTrial {
		return false, ErrBreakerOpen
	}
	b.inTrial = true
	return true, nil
}

func (b *BreakerProvider) record(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.inTrial = false
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if err == nil {
		switch b.state {
		case BreakerClosed:
			b.failures = 0
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = BreakerClosed
				b.failures = 0
				b.logger.Info("backend recovered, breaker closed")
			}
		}
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || (b.state == BreakerClosed && b.failures >= b.cfg.MaxFailures) {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.logger.Warn("breaker opened after %d failures: %v", b.failures, err)
	}
}
