package memorylimiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter counts rejected bearer tokens per client over a sliding window and
// blocks a client once it reaches the limit. Single-node only; use the
// redis limiter when several replicas share one budget.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string][]int64 // failure times in Unix ms, oldest first
}

// New returns a limiter allowing limit failures per window. A limit of zero disables blocking.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string][]int64),
	}
}

// Blocked reports whether key has used up its failure budget.
func (l *Limiter) Blocked(_ context.Context, key string) (bool, error) {
	if l == nil || l.limit <= 0 {
		return false, nil
	}
	if key == "" {
		return false, errors.New("key required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key)) >= l.limit, nil
}

// RecordFailure notes one rejected token for key.
func (l *Limiter) RecordFailure(_ context.Context, key string) error {
	if l == nil || l.limit <= 0 {
		return nil
	}
	if key == "" {
		return errors.New("key required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients[key] = append(l.prune(key), l.now().UnixMilli())
	return nil
}

// prune drops entries outside the window and forgets idle clients. Caller holds mu.
func (l *Limiter) prune(key string) []int64 {
	ts := l.clients[key]
	start := l.now().Add(-l.window).UnixMilli()
	i := 0
	for i < len(ts) && ts[i] <= start {
		i++
	}
	ts = ts[i:]
	if len(ts) == 0 {
		delete(l.clients, key)
		return nil
	}
	l.clients[key] = ts
	return ts
}
