package cache

import (
	"context"
	"sync"
	"time"
)

type value struct {
	data    []byte
	expires time.Time // zero means never
}

// MemoryProvider keeps entries in a map guarded by a mutex. Expired entries
// are removed lazily on read and by a background goroutine. Contents are lost
// on process restart and not shared across processes.
type MemoryProvider struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cache     map[string]*value
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       options
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider returns an in-process Provider. Close stops its cleanup goroutine.
func NewMemoryProvider(parent context.Context, opts ...Option) *MemoryProvider {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	p := &MemoryProvider{
		ctx:    ctx,
		cancel: cancel,
		cache:  make(map[string]*value),
		cfg:    cfg,
	}
	p.waitGroup.Add(1)
	go p.run()
	return p
}

func (p *MemoryProvider) Kind() Kind {
	return KindMemory
}

func (p *MemoryProvider) expired(v *value, now time.Time) bool {
	return !v.expires.IsZero() && !now.Before(v.expires)
}

func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	v, ok := p.cache[key]
	if !ok {
		return nil, false, nil
	}
	if p.expired(v, p.cfg.now()) {
		delete(p.cache, key)
		return nil, false, nil
	}
	return v.data, true, nil
}

func (p *MemoryProvider) Set(_ context.Context, key string, data []byte, ttlSeconds int) error {
	if ttlSeconds == 0 {
		return nil
	}
	v := &value{data: data}
	if ttlSeconds > 0 {
		v.expires = p.cfg.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	p.mutex.Lock()
	p.cache[key] = v
	p.mutex.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (p *MemoryProvider) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.cache)
}

func (p *MemoryProvider) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.waitGroup.Wait()
	})
	return nil
}

func (p *MemoryProvider) run() {
	defer p.waitGroup.Done()
	ticker := time.NewTicker(p.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			now := p.cfg.now()
			p.mutex.Lock()
			for key, v := range p.cache {
				if p.expired(v, now) {
					delete(p.cache, key)
				}
			}
			p.mutex.Unlock()
		}
	}
}
