package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

// GetSubmissionUsecase fetches a submission's status and verdict.
type GetSubmissionUsecase struct {
	repo   repository.SubmissionRepository
	logger *zap.Logger
}

// NewGetSubmissionUsecase creates a new GetSubmissionUsecase.
func NewGetSubmissionUsecase(repo repository.SubmissionRepository, logger *zap.Logger) *GetSubmissionUsecase {
	return &GetSubmissionUsecase{
		repo:   repo,
		logger: logger,
	}
}

// Execute retrieves a submission by its ID.
func (uc *GetSubmissionUsecase) Execute(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	sub, err := uc.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		uc.logger.Debug("Submission not found", zap.String("submission_id", id.String()))
		return nil, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}
