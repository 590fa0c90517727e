package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourorg/trading-engine/internal/model"
)

// Limiter is a sliding-window call throttle: at most maxCalls calls are
// admitted within any rolling window. Waiting callers do not hold the
// lock, so other goroutines sharing the limiter keep making progress.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time
}

// NewLimiter creates a limiter admitting maxCalls per window.
func NewLimiter(maxCalls int, window time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
	}
}

// Wait blocks until the call can proceed within the window, then records
// it. Returns early with the context's error if ctx is cancelled while
// waiting. After a sleep the window is re-checked, since another caller
// may have taken the freed slot.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)

		if len(l.calls) < l.maxCalls {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.window - now.Sub(l.calls[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// prune drops call records older than the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// Registry hands out one limiter per (account, account type) pair. Paper
// and real accounts have different per-second ceilings at the broker, so
// the type is part of the key.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	realMax  int
	paperMax int
	window   time.Duration
}

// NewRegistry creates a registry with the given per-window ceilings.
func NewRegistry(realMax, paperMax int, window time.Duration) *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
		realMax:  realMax,
		paperMax: paperMax,
		window:   window,
	}
}

// For returns the limiter for an account, creating it on first use.
func (r *Registry) For(accountNo string, kind model.AccountType) *Limiter {
	key := fmt.Sprintf("%s:%s", accountNo, kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[key]; ok {
		return lim
	}

	max := r.realMax
	if kind == model.AccountTypePaper {
		max = r.paperMax
	}

	lim := NewLimiter(max, r.window)
	r.limiters[key] = lim
	return lim
}
