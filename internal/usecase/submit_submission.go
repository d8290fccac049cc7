package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

// SubmitSubmissionUsecase persists a submission and queues it for judging.
type SubmitSubmissionUsecase struct {
	repo           repository.SubmissionRepository
	publisher      repository.JobPublisher
	maxSourceBytes int
	logger         *zap.Logger
}

// NewSubmitSubmissionUsecase creates a new SubmitSubmissionUsecase.
func NewSubmitSubmissionUsecase(
	repo repository.SubmissionRepository,
	pub repository.JobPublisher,
	maxSourceBytes int,
	logger *zap.Logger,
) *SubmitSubmissionUsecase {
	return &SubmitSubmissionUsecase{
		repo:           repo,
		publisher:      pub,
		maxSourceBytes: maxSourceBytes,
		logger:         logger,
	}
}

// Execute validates the request, creates the submission row, publishes the
// job and returns the new submission ID.
func (uc *SubmitSubmissionUsecase) Execute(ctx context.Context, req *domain.SubmitRequest) (*domain.SubmitResponse, error) {
	if strings.TrimSpace(req.SourceCode) == "" {
		return nil, domain.ErrEmptySourceCode
	}
	if uc.maxSourceBytes > 0 && len(req.SourceCode) > uc.maxSourceBytes {
		return nil, domain.ErrPayloadTooLarge
	}
	if len(req.TestCases) == 0 {
		return nil, domain.ErrNoTestCases
	}
	// Defaults may be left unset for the worker to fill; overrides may not exceed the bounds.
	if !req.Limits.Bounded(req.TestCases) {
		return nil, domain.ErrInvalidLimits
	}

	// UUIDv7 keeps submission IDs time-ordered.
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.JudgeJob{
		SubmissionID: id,
		ProblemID:    req.ProblemID,
		StudentID:    req.StudentID,
		SourceCode:   req.SourceCode,
		TestCases:    req.TestCases,
		Limits:       req.Limits,
		FailFast:     req.FailFast,
		CreatedAt:    now,
	}
	sub := &domain.Submission{
		SubmissionID: id,
		ProblemID:    req.ProblemID,
		StudentID:    req.StudentID,
		Status:       domain.SubmissionQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, sub, job); err != nil {
		uc.logger.Error("Failed to create submission", zap.Error(err), zap.String("submission_id", id.String()))
		return nil, fmt.Errorf("create submission: %w", err)
	}

	if err := uc.publisher.Publish(ctx, job); err != nil {
		uc.logger.Error("Failed to publish submission", zap.Error(err), zap.String("submission_id", id.String()))
		// Nothing will pick it up; don't leave it QUEUED forever.
		_ = uc.repo.UpdateStatus(ctx, id, domain.SubmissionFailed)
		return nil, domain.ErrPublishFailed
	}

	uc.logger.Info("Submission queued",
		zap.String("submission_id", id.String()),
		zap.String("problem_id", req.ProblemID),
		zap.Int("test_cases", len(req.TestCases)),
	)

	return &domain.SubmitResponse{
		SubmissionID: id,
		Status:       domain.SubmissionQueued,
	}, nil
}
