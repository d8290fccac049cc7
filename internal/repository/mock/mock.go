package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

// ---- SubmissionRepository mock ----

var _ repository.SubmissionRepository = (*SubmissionRepository)(nil)

// SubmissionRepository is a test double for repository.SubmissionRepository.
type SubmissionRepository struct {
	mu sync.Mutex

	CreateFn       func(ctx context.Context, sub *domain.Submission, job *domain.JudgeJob) error
	GetByIDFn      func(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error
	SetVerdictFn   func(ctx context.Context, id uuid.UUID, verdict *domain.JudgeVerdict) error

	// Recorded calls for assertions.
	Created       []*domain.Submission
	StatusUpdates []StatusUpdate
	Verdicts      []VerdictUpdate
}

type StatusUpdate struct {
	ID     uuid.UUID
	Status domain.SubmissionStatus
}

type VerdictUpdate struct {
	ID      uuid.UUID
	Verdict *domain.JudgeVerdict
}

func (m *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission, job *domain.JudgeJob) error {
	m.mu.Lock()
	m.Created = append(m.Created, sub)
	m.mu.Unlock()
	if m.CreateFn != nil {
		return m.CreateFn(ctx, sub, job)
	}
	return nil
}

func (m *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.Created {
		if sub.SubmissionID == id {
			return sub, nil
		}
	}
	return nil, domain.ErrSubmissionNotFound
}

func (m *SubmissionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	m.mu.Lock()
	m.StatusUpdates = append(m.StatusUpdates, StatusUpdate{ID: id, Status: status})
	m.mu.Unlock()
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status)
	}
	return nil
}

func (m *SubmissionRepository) SetVerdict(ctx context.Context, id uuid.UUID, verdict *domain.JudgeVerdict) error {
	m.mu.Lock()
	m.Verdicts = append(m.Verdicts, VerdictUpdate{ID: id, Verdict: verdict})
	m.mu.Unlock()
	if m.SetVerdictFn != nil {
		return m.SetVerdictFn(ctx, id, verdict)
	}
	return nil
}

// ---- JobPublisher mock ----

var _ repository.JobPublisher = (*JobPublisher)(nil)

// JobPublisher is a test double for repository.JobPublisher.
type JobPublisher struct {
	mu sync.Mutex

	PublishFn func(ctx context.Context, job *domain.JudgeJob) error

	Published []*domain.JudgeJob
}

func (m *JobPublisher) Publish(ctx context.Context, job *domain.JudgeJob) error {
	if m.PublishFn != nil {
		if err := m.PublishFn(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Published = append(m.Published, job)
	m.mu.Unlock()
	return nil
}

// ---- IdempotencyStore mock ----

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is a test double for repository.IdempotencyStore.
type IdempotencyStore struct {
	mu sync.Mutex

	AcquireLockFn func(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseLockFn func(ctx context.Context, id uuid.UUID) error
	ClearLockFn   func(ctx context.Context, id uuid.UUID) error

	AcquireCalls []uuid.UUID
	ReleaseCalls []uuid.UUID
	ClearCalls   []uuid.UUID
}

func (m *IdempotencyStore) AcquireLock(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, id)
	m.mu.Unlock()
	if m.AcquireLockFn != nil {
		return m.AcquireLockFn(ctx, id)
	}
	return true, nil // default: lock acquired
}

func (m *IdempotencyStore) ReleaseLock(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, id)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, id)
	}
	return nil
}

func (m *IdempotencyStore) ClearLock(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.ClearCalls = append(m.ClearCalls, id)
	m.mu.Unlock()
	if m.ClearLockFn != nil {
		return m.ClearLockFn(ctx, id)
	}
	return nil
}

// ---- Analyzer mock ----

var _ repository.Analyzer = (*Analyzer)(nil)

// Analyzer is a test double for repository.Analyzer.
type Analyzer struct {
	mu sync.Mutex

	AnalyzeFn func(ctx context.Context, code string) (*domain.AnalysisResult, error)

	AnalyzeCalls []string
}

func (m *Analyzer) Analyze(ctx context.Context, code string) (*domain.AnalysisResult, error) {
	m.mu.Lock()
	m.AnalyzeCalls = append(m.AnalyzeCalls, code)
	m.mu.Unlock()
	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, code)
	}
	return &domain.AnalysisResult{Status: domain.AnalysisOK, Violations: []domain.Violation{}}, nil
}

// ---- Executor mock ----

var _ repository.Executor = (*Executor)(nil)

// Executor is a test double for repository.Executor.
type Executor struct {
	mu sync.Mutex

	ExecuteFn func(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error)

	ExecuteCalls []*domain.ExecutionRequest
}

func (m *Executor) Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error) {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, req)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, req)
	}
	return &domain.ExecutionResult{
		Status:          domain.RunOK,
		Stdout:          req.Stdin,
		ExitCode:        0,
		ElapsedMs:       42,
		PeakMemoryBytes: 8 << 20,
	}, nil
}

// Calls returns a snapshot of the recorded Execute requests.
func (m *Executor) Calls() []*domain.ExecutionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExecutionRequest(nil), m.ExecuteCalls...)
}

// ---- Judge mock ----

var _ repository.Judge = (*Judge)(nil)

// Judge is a test double for repository.Judge.
type Judge struct {
	mu sync.Mutex

	JudgeFn func(ctx context.Context, code string, testCases []domain.TestCase, limits domain.Limits, opts domain.Options) (*domain.JudgeVerdict, error)

	JudgeCalls []JudgeCall
}

type JudgeCall struct {
	Code      string
	TestCases []domain.TestCase
	Limits    domain.Limits
	Options   domain.Options
}

func (m *Judge) Judge(ctx context.Context, code string, testCases []domain.TestCase, limits domain.Limits, opts domain.Options) (*domain.JudgeVerdict, error) {
	m.mu.Lock()
	m.JudgeCalls = append(m.JudgeCalls, JudgeCall{Code: code, TestCases: testCases, Limits: limits, Options: opts})
	m.mu.Unlock()
	if m.JudgeFn != nil {
		return m.JudgeFn(ctx, code, testCases, limits, opts)
	}
	return &domain.JudgeVerdict{
		Status:      domain.VerdictAccepted,
		PassedCount: len(testCases),
		TotalCount:  len(testCases),
		CaseResults: []domain.CaseVerdict{},
	}, nil
}
