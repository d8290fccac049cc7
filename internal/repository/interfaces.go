package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

// SubmissionRepository defines the interface for submission state in the database.
type SubmissionRepository interface {
	// Create inserts a new submission row.
	Create(ctx context.Context, sub *domain.Submission, job *domain.JudgeJob) error

	// GetByID retrieves a submission and its verdict, if judged.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	// UpdateStatus atomically updates the lifecycle status of a submission.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error

	// SetVerdict stores the judge verdict for a finished submission.
	SetVerdict(ctx context.Context, id uuid.UUID, verdict *domain.JudgeVerdict) error
}

// IdempotencyStore defines the interface for distributed deduplication locks.
type IdempotencyStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a submission.
	// Returns true if the lock was acquired (first time), false if already locked (duplicate).
	AcquireLock(ctx context.Context, id uuid.UUID) (bool, error)

	// ReleaseLock releases the processing lock with a TTL for eventual cleanup.
	ReleaseLock(ctx context.Context, id uuid.UUID) error

	// ClearLock drops the lock so a redelivered message is processed again.
	ClearLock(ctx context.Context, id uuid.UUID) error
}

// JobPublisher queues submissions for the worker.
type JobPublisher interface {
	Publish(ctx context.Context, job *domain.JudgeJob) error
}

// Analyzer is the static safety check run once per submission.
type Analyzer interface {
	Analyze(ctx context.Context, code string) (*domain.AnalysisResult, error)
}

// Executor runs a submission against a single input.
type Executor interface {
	Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error)
}

// Judge turns a submission and its test cases into a verdict.
type Judge interface {
	Judge(ctx context.Context, code string, testCases []domain.TestCase, limits domain.Limits, opts domain.Options) (*domain.JudgeVerdict, error)
}
