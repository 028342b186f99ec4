package ai

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
)

// Drafter produces portfolio drafts; *Generator implements it.
type Drafter interface {
	Generate(ctx context.Context, req Request) (*Draft, error)
}

// Result is what a worker sends back for one job.
type Result struct {
	Draft *Draft
	Err   error
}

type job struct {
	ctx      context.Context
	req      Request
	resultCh chan Result // buffered so a worker never blocks on an abandoned job
}

// Pool bounds how many generations run against the model at once.
type Pool struct {
	drafter  Drafter
	workers  int
	queue    chan job
	stopCh   chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   *zap.Logger
}

var errPoolStopped = apperrors.New(apperrors.KindUnavailable, "portfolio generation is shutting down", nil)

func NewPool(drafter Drafter, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		drafter: drafter,
		workers: workers,
		queue:   make(chan job, queueSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("generation workers started", zap.Int("workers", p.workers))
}

// Stop lets in-flight jobs finish and stops the workers. Queued jobs
// that never started fail with an unavailable error.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		close(p.done)
		p.logger.Info("generation workers stopped")
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return

		case j := <-p.queue:
			if err := j.ctx.Err(); err != nil {
				j.resultCh <- Result{Err: cancelled(err)}
				continue
			}

			p.logger.Debug("worker processing generation", zap.Int("worker", id))
			draft, err := p.drafter.Generate(j.ctx, j.req)
			if err != nil && j.ctx.Err() != nil {
				err = cancelled(j.ctx.Err())
			}
			j.resultCh <- Result{Draft: draft, Err: err}
		}
	}
}

// Submit queues req and waits for its result, ctx cancellation or pool
// shutdown, whichever comes first.
func (p *Pool) Submit(ctx context.Context, req Request) (*Draft, error) {
	select {
	case <-p.stopCh:
		return nil, errPoolStopped
	default:
	}

	resultCh := make(chan Result, 1)
	select {
	case p.queue <- job{ctx: ctx, req: req, resultCh: resultCh}:
	case <-p.stopCh:
		return nil, errPoolStopped
	case <-ctx.Done():
		return nil, cancelled(ctx.Err())
	}

	select {
	case r := <-resultCh:
		return r.Draft, r.Err
	case <-ctx.Done():
		return nil, cancelled(ctx.Err())
	case <-p.done:
		select {
		case r := <-resultCh:
			return r.Draft, r.Err
		default:
			return nil, errPoolStopped
		}
	}
}

func cancelled(err error) error {
	return apperrors.New(apperrors.KindUnavailable, "portfolio generation cancelled", err)
}
