// Package pipeline drives the analysis lifecycle for uploaded images: it
// owns the status state machine and the primary/fallback provider policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecosnap/ecosnap/internal/analysis"
	"github.com/ecosnap/ecosnap/internal/llm"
	"github.com/ecosnap/ecosnap/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultCooldown is how long to wait before the single orchestrator-level
// retry after the primary client reports throttle exhaustion.
const DefaultCooldown = 5 * time.Second

// Job identifies one upload to analyze.
type Job struct {
	UploadID     string
	ImagePath    string
	OriginalName string
}

// Orchestrator runs the analysis state machine for one upload at a time per
// id: processing -> primary (with one cooldown retry on throttling) ->
// fallback -> completed or failed. Concurrent runs for the same upload id
// are coalesced.
type Orchestrator struct {
	store    storage.UploadStore
	primary  llm.Analyzer
	fallback llm.Analyzer // nil when no fallback is configured
	cooldown time.Duration

	inflight singleflight.Group
}

// NewOrchestrator wires the orchestrator. fallback may be nil; its absence
// turns fallback attempts into an immediate failure.
func NewOrchestrator(store storage.UploadStore, primary, fallback llm.Analyzer) *Orchestrator {
	return &Orchestrator{
		store:    store,
		primary:  primary,
		fallback: fallback,
		cooldown: DefaultCooldown,
	}
}

// SetCooldown overrides the throttle-retry cooldown. Intended for tests.
func (o *Orchestrator) SetCooldown(d time.Duration) {
	o.cooldown = d
}

// Process runs the full analysis for a job. Duplicate concurrent calls for
// the same upload id share a single execution.
func (o *Orchestrator) Process(ctx context.Context, job Job) error {
	_, err, shared := o.inflight.Do(job.UploadID, func() (any, error) {
		return nil, o.run(ctx, job)
	})
	if shared {
		log.Debug().Str("uploadId", job.UploadID).Msg("duplicate analysis run coalesced")
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context, job Job) error {
	start := time.Now()
	log.Info().Str("uploadId", job.UploadID).Msg("starting analysis")

	if err := o.store.SetProcessing(job.UploadID); err != nil {
		if errors.Is(err, storage.ErrTerminal) {
			log.Warn().Str("uploadId", job.UploadID).Msg("upload already in terminal state, skipping")
			return nil
		}
		return fmt.Errorf("failed to mark upload processing: %w", err)
	}

	outcome := o.analyze(ctx, job)
	if outcome.Kind != llm.OutcomeSuccess {
		if err := o.store.Fail(job.UploadID, outcome.Err.Error()); err != nil && !errors.Is(err, storage.ErrTerminal) {
			return fmt.Errorf("failed to mark upload failed: %w", err)
		}
		log.Error().
			Str("uploadId", job.UploadID).
			Err(outcome.Err).
			Msg("analysis failed")
		return outcome.Err
	}

	result := analysis.Normalize(outcome.Raw)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	if err := o.store.Complete(job.UploadID, result); err != nil && !errors.Is(err, storage.ErrTerminal) {
		return fmt.Errorf("failed to mark upload completed: %w", err)
	}

	log.Info().
		Str("uploadId", job.UploadID).
		Str("category", string(result.ItemCategory)).
		Float64("confidence", result.Confidence).
		Int64("processingTimeMs", result.ProcessingTimeMs).
		Msg("analysis completed")
	return nil
}

// analyze applies the provider policy: primary, one cooldown retry when the
// primary exhausted its throttling budget, then fallback. The fallback
// triggers on throttle exhaustion or on the first non-throttling primary
// failure. When the fallback also fails, the primary's original error is
// preserved for diagnostics.
func (o *Orchestrator) analyze(ctx context.Context, job Job) llm.Outcome {
	outcome := o.primary.Analyze(ctx, job.ImagePath, job.OriginalName)
	if outcome.Kind == llm.OutcomeSuccess {
		return outcome
	}

	if outcome.Kind == llm.OutcomeRateLimited {
		log.Warn().
			Str("uploadId", job.UploadID).
			Dur("cooldown", o.cooldown).
			Msg("primary provider throttled, retrying after cooldown")
		if err := sleep(ctx, o.cooldown); err != nil {
			return llm.Failure(err)
		}
		outcome = o.primary.Analyze(ctx, job.ImagePath, job.OriginalName)
		if outcome.Kind == llm.OutcomeSuccess {
			return outcome
		}
	}

	if o.fallback == nil {
		if outcome.Err == nil {
			return llm.Failure(errors.New("no fallback configured"))
		}
		return outcome
	}

	log.Warn().
		Str("uploadId", job.UploadID).
		Err(outcome.Err).
		Msg("falling back to secondary provider")

	fallbackOutcome := o.fallback.Analyze(ctx, job.ImagePath, job.OriginalName)
	if fallbackOutcome.Kind == llm.OutcomeSuccess {
		return fallbackOutcome
	}

	log.Error().
		Str("uploadId", job.UploadID).
		Err(fallbackOutcome.Err).
		Msg("fallback provider failed")

	// Preserve the primary's error as the root cause
	return outcome
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
