package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovernorConcurrencyCap(t *testing.T) {
	g := New(Config{
		MaxConcurrent: 3,
		MinInterval:   time.Millisecond,
		Quota:         1000,
		Window:        time.Minute,
	})

	var inflight, peak int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Acquire(context.Background()))
			n := atomic.AddInt64(&inflight, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inflight, -1)
			g.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(0))
}

func TestGovernorSpacing(t *testing.T) {
	interval := 20 * time.Millisecond
	g := New(Config{
		MaxConcurrent: 5,
		MinInterval:   interval,
		Quota:         1000,
		Window:        time.Minute,
	})

	var mu sync.Mutex
	var admissions []time.Time
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Acquire(context.Background()))
			mu.Lock()
			admissions = append(admissions, time.Now())
			mu.Unlock()
			g.Release()
		}()
	}
	wg.Wait()

	require.Len(t, admissions, 5)
	// Admission times recorded after the fact can jitter slightly; allow a
	// small tolerance below the configured floor.
	tolerance := interval / 2
	for i := 1; i < len(admissions); i++ {
		gap := admissions[i].Sub(admissions[i-1])
		assert.GreaterOrEqual(t, gap, interval-tolerance, "gap between admissions %d and %d", i-1, i)
	}
}

func TestGovernorQuotaSuspendsUntilRefill(t *testing.T) {
	window := 100 * time.Millisecond
	g := New(Config{
		MaxConcurrent: 2,
		MinInterval:   time.Millisecond,
		Quota:         2,
		Window:        window,
	})

	start := time.Now()
	for i := 0; i < 2; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		g.Release()
	}

	// Third acquire must wait for the window boundary, not fail
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()

	assert.GreaterOrEqual(t, time.Since(start), window/2)
}

func TestGovernorAcquireHonorsContext(t *testing.T) {
	g := New(Config{
		MaxConcurrent: 1,
		MinInterval:   time.Millisecond,
		Quota:         100,
		Window:        time.Minute,
	})

	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	g.Release()

	// The slot is usable again after release
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()
}

func TestGovernorDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultMaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, DefaultMinInterval, cfg.MinInterval)
	assert.Equal(t, DefaultQuota, cfg.Quota)
	assert.Equal(t, DefaultWindow, cfg.Window)
}
