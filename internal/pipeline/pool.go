package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// ErrQueueFull is returned by Submit when the job queue is saturated.
var ErrQueueFull = errors.New("pipeline: job queue is full")

// Pool is a supervised worker pool executing analysis jobs off the request
// path. Jobs are queued by Submit and drained by a fixed set of workers;
// per-job failures are logged by the worker and recorded on the upload, they
// never take a worker down.
type Pool struct {
	orchestrator *Orchestrator
	jobs         chan Job
	workers      int

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool creates a pool. Non-positive arguments fall back to the defaults.
func NewPool(orchestrator *Orchestrator, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool{
		orchestrator: orchestrator,
		jobs:         make(chan Job, queueSize),
		workers:      workers,
	}
}

// Start launches the workers. It blocks until ctx is cancelled and all
// workers have drained, making it suitable for an errgroup.Go closure.
func (p *Pool) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		log.Info().Int("workers", p.workers).Msg("starting analysis worker pool")
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	<-ctx.Done()
	p.wg.Wait()
	log.Info().Msg("analysis worker pool stopped")
	return ctx.Err()
}

// Submit enqueues a job without blocking. The caller's request returns with
// the upload still pending; the analysis proceeds on a pool worker.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			if err := p.orchestrator.Process(ctx, job); err != nil {
				log.Error().
					Int("worker", id).
					Str("uploadId", job.UploadID).
					Err(err).
					Msg("analysis job failed")
			}
		}
	}
}
