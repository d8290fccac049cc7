package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/metrics"
	"github.com/midopa-dept/python-code-judge-sub000/internal/usecase"
)

// WorkerPool runs queued submissions on a fixed number of goroutines.
type WorkerPool struct {
	size    int
	jobs    <-chan *domain.JobMessage
	judgeUC *usecase.JudgeSubmissionUsecase
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, jobs <-chan *domain.JobMessage, judgeUC *usecase.JudgeSubmissionUsecase, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    jobs,
		judgeUC: judgeUC,
		logger:  logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current submission and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("Job channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle judges one message and settles it with the broker. A panic in the
// judge is contained to this message, which is dead-lettered.
func (p *WorkerPool) handle(ctx context.Context, workerID int, msg *domain.JobMessage) {
	job := msg.Job
	log := p.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("submission_id", job.SubmissionID.String()),
	)

	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panic recovered", zap.Any("panic", r))
			if nackErr := msg.Nack(false); nackErr != nil {
				log.Error("Failed to NACK message", zap.Error(nackErr))
			}
		}
	}()

	log.Info("Worker processing submission", zap.Int("test_cases", len(job.TestCases)))

	isDuplicate, err := p.judgeUC.Execute(ctx, job)
	if err != nil {
		log.Error("Submission judging failed", zap.Error(err))
		// Only work interrupted by shutdown is requeued; the rest is dead-lettered.
		requeue := ctx.Err() != nil
		if nackErr := msg.Nack(requeue); nackErr != nil {
			log.Error("Failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	if isDuplicate {
		log.Debug("Duplicate submission skipped")
	}
	if ackErr := msg.Ack(); ackErr != nil {
		log.Error("Failed to ACK message", zap.Error(ackErr))
	}
}
