// Package ratelimit bounds outbound provider traffic: a concurrency cap, a
// minimum spacing between admitted calls, and a windowed call quota.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrent = 3
	DefaultMinInterval   = 150 * time.Millisecond
	DefaultQuota         = 100
	DefaultWindow        = 60 * time.Second
)

// Config configures a Governor. Zero values fall back to the defaults above.
type Config struct {
	// MaxConcurrent is the maximum number of in-flight calls.
	MaxConcurrent int
	// MinInterval is the minimum spacing between admitted calls.
	MinInterval time.Duration
	// Quota is the number of calls admitted per Window. The quota refills
	// in full at the window boundary.
	Quota  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.Quota <= 0 {
		c.Quota = DefaultQuota
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Governor admits calls subject to a concurrency cap, a spacing floor and a
// refillable quota. Acquire blocks until a slot is available; it only fails
// when the caller's context is done. Safe for concurrent use.
type Governor struct {
	cfg Config
	sem *semaphore.Weighted

	mu          sync.Mutex
	remaining   int
	windowStart time.Time
	lastAdmit   time.Time
}

// New creates a Governor with the given configuration.
func New(cfg Config) *Governor {
	cfg = cfg.withDefaults()
	return &Governor{
		cfg:         cfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		remaining:   cfg.Quota,
		windowStart: time.Now(),
	}
}

// Acquire blocks until the governor admits a call. Every successful Acquire
// must be paired with a Release, regardless of how the call turns out.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	for {
		wait := g.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			g.sem.Release(1)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release returns the concurrency slot taken by a successful Acquire.
func (g *Governor) Release() {
	g.sem.Release(1)
}

// reserve either admits the call now (returns 0 and consumes quota) or
// returns how long the caller should wait before trying again. All counter
// mutation happens inside this critical section.
func (g *Governor) reserve() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	// Refill the quota at the window boundary
	if now.Sub(g.windowStart) >= g.cfg.Window {
		g.remaining = g.cfg.Quota
		g.windowStart = now
	}

	var wait time.Duration
	if !g.lastAdmit.IsZero() {
		if spacing := g.lastAdmit.Add(g.cfg.MinInterval).Sub(now); spacing > wait {
			wait = spacing
		}
	}
	if g.remaining <= 0 {
		if quotaWait := g.windowStart.Add(g.cfg.Window).Sub(now); quotaWait > wait {
			wait = quotaWait
		}
	}

	if wait > 0 {
		return wait
	}

	g.remaining--
	g.lastAdmit = now
	return 0
}
