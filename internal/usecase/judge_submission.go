package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/metrics"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

// JudgeSubmissionUsecase runs one queued submission through the judge and
// persists the verdict.
type JudgeSubmissionUsecase struct {
	repo       repository.SubmissionRepository
	idempotent repository.IdempotencyStore
	judge      repository.Judge
	logger     *zap.Logger

	defaultLimits  domain.Limits
	defaultOptions domain.Options
}

// NewJudgeSubmissionUsecase creates a new JudgeSubmissionUsecase.
func NewJudgeSubmissionUsecase(
	repo repository.SubmissionRepository,
	idempotent repository.IdempotencyStore,
	judge repository.Judge,
	logger *zap.Logger,
) *JudgeSubmissionUsecase {
	return &JudgeSubmissionUsecase{
		repo:       repo,
		idempotent: idempotent,
		judge:      judge,
		logger:     logger,

		defaultOptions: domain.DefaultOptions(),
	}
}

// WithDefaults sets the limits and options applied where a job leaves them unset.
func (uc *JudgeSubmissionUsecase) WithDefaults(limits domain.Limits, opts domain.Options) *JudgeSubmissionUsecase {
	uc.defaultLimits = limits
	uc.defaultOptions = opts
	return uc
}

// Execute processes a single job: idempotency check → JUDGING → judge → store verdict.
// Returns (isDuplicate, error).
func (uc *JudgeSubmissionUsecase) Execute(ctx context.Context, job *domain.JudgeJob) (bool, error) {
	id := job.SubmissionID
	log := uc.logger.With(zap.String("submission_id", id.String()))

	acquired, err := uc.idempotent.AcquireLock(ctx, id)
	if err != nil {
		log.Error("Failed to acquire idempotency lock", zap.Error(err))
		return false, err
	}
	if !acquired {
		log.Info("Duplicate message detected, skipping")
		return true, nil
	}

	if err := uc.repo.UpdateStatus(ctx, id, domain.SubmissionJudging); err != nil {
		log.Error("Failed to update submission status", zap.Error(err))
		return false, err
	}

	start := time.Now()
	verdict, err := uc.judge.Judge(ctx, job.SourceCode, job.TestCases, job.Limits.Or(uc.defaultLimits), job.Options(uc.defaultOptions))
	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the run: hand the submission back to the queue.
		log.Warn("Judging interrupted", zap.Error(err))
		cleanupCtx := context.WithoutCancel(ctx)
		if statusErr := uc.repo.UpdateStatus(cleanupCtx, id, domain.SubmissionQueued); statusErr != nil {
			log.Error("Failed to requeue submission status", zap.Error(statusErr))
		}
		if lockErr := uc.idempotent.ClearLock(cleanupCtx, id); lockErr != nil {
			log.Error("Failed to clear idempotency lock", zap.Error(lockErr))
		}
		return false, fmt.Errorf("judge submission %s interrupted: %w", id, err)
	}
	if err != nil {
		log.Error("Judge failed", zap.Error(err))
		metrics.JudgeFailures.Inc()
		if statusErr := uc.repo.UpdateStatus(ctx, id, domain.SubmissionFailed); statusErr != nil {
			log.Error("Failed to mark submission as failed", zap.Error(statusErr))
		}
		// The message is dead-lettered; a redrive must not be skipped as a duplicate.
		if lockErr := uc.idempotent.ClearLock(ctx, id); lockErr != nil {
			log.Warn("Failed to clear idempotency lock", zap.Error(lockErr))
		}
		return false, fmt.Errorf("judge submission %s: %w", id, err)
	}
	elapsed := time.Since(start)

	metrics.JudgementsTotal.WithLabelValues(string(verdict.Status)).Inc()
	metrics.JudgeDuration.WithLabelValues(string(verdict.Status)).Observe(elapsed.Seconds())

	if err := uc.repo.SetVerdict(ctx, id, verdict); err != nil {
		log.Error("Failed to store verdict", zap.Error(err))
		return false, err
	}

	if err := uc.idempotent.ReleaseLock(ctx, id); err != nil {
		log.Warn("Failed to release idempotency lock", zap.Error(err))
	}

	log.Info("Submission judged",
		zap.String("problem_id", job.ProblemID),
		zap.String("status", string(verdict.Status)),
		zap.Int("passed", verdict.PassedCount),
		zap.Int("total", verdict.TotalCount),
		zap.Duration("elapsed", elapsed),
	)
	return false, nil
}
