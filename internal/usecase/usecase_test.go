package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository/mock"
	"github.com/midopa-dept/python-code-judge-sub000/internal/usecase"
)

func newTestUsecase(repo *mock.SubmissionRepository, idem *mock.IdempotencyStore, j *mock.Judge) *usecase.JudgeSubmissionUsecase {
	return usecase.NewJudgeSubmissionUsecase(repo, idem, j, zap.NewNop())
}

func newTestJob() *domain.JudgeJob {
	return &domain.JudgeJob{
		SubmissionID: uuid.New(),
		ProblemID:    "p-1",
		StudentID:    "s-1",
		SourceCode:   "print(int(input()) * 2)",
		TestCases: []domain.TestCase{
			{ID: "1", Input: "2", ExpectedOutput: "4", IsPublic: true},
			{ID: "2", Input: "3", ExpectedOutput: "6"},
		},
		Limits: domain.Limits{DefaultTimeLimitSeconds: 2, DefaultMemoryLimitMB: 128},
	}
}

// Test: successful judgement end-to-end.
func TestExecute_Success(t *testing.T) {
	repo := &mock.SubmissionRepository{}
	idem := &mock.IdempotencyStore{}
	j := &mock.Judge{}

	job := newTestJob()
	isDup, err := newTestUsecase(repo, idem, j).Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isDup {
		t.Fatal("expected not duplicate")
	}

	if len(repo.StatusUpdates) != 1 || repo.StatusUpdates[0].Status != domain.SubmissionJudging {
		t.Fatalf("expected a single JUDGING update, got %+v", repo.StatusUpdates)
	}
	if len(repo.Verdicts) != 1 {
		t.Fatalf("expected 1 verdict, got %d", len(repo.Verdicts))
	}
	if repo.Verdicts[0].ID != job.SubmissionID || repo.Verdicts[0].Verdict.Status != domain.VerdictAccepted {
		t.Errorf("unexpected stored verdict %+v", repo.Verdicts[0])
	}
	if len(idem.AcquireCalls) != 1 || len(idem.ReleaseCalls) != 1 {
		t.Errorf("expected lock acquired and released once, got %d/%d", len(idem.AcquireCalls), len(idem.ReleaseCalls))
	}
}

// Test: judge receives the job's code, cases, limits and options.
func TestExecute_PassesJobToJudge(t *testing.T) {
	j := &mock.Judge{}
	job := newTestJob()
	failFast := false
	job.FailFast = &failFast

	if _, err := newTestUsecase(&mock.SubmissionRepository{}, &mock.IdempotencyStore{}, j).Execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(j.JudgeCalls) != 1 {
		t.Fatalf("expected 1 judge call, got %d", len(j.JudgeCalls))
	}
	call := j.JudgeCalls[0]
	if call.Code != job.SourceCode {
		t.Errorf("source code mismatch")
	}
	if len(call.TestCases) != 2 {
		t.Errorf("expected 2 test cases, got %d", len(call.TestCases))
	}
	if call.Limits != job.Limits {
		t.Errorf("limits mismatch: %+v", call.Limits)
	}
	if call.Options.FailFast {
		t.Errorf("expected fail-fast disabled by the job")
	}
}

// Test: fail-fast defaults to on when the job does not say.
func TestExecute_DefaultOptions(t *testing.T) {
	j := &mock.Judge{}
	if _, err := newTestUsecase(&mock.SubmissionRepository{}, &mock.IdempotencyStore{}, j).Execute(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !j.JudgeCalls[0].Options.FailFast {
		t.Error("expected fail-fast by default")
	}
}

// Test: duplicate message is detected and skipped.
func TestExecute_Duplicate(t *testing.T) {
	repo := &mock.SubmissionRepository{}
	idem := &mock.IdempotencyStore{
		AcquireLockFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return false, nil
		},
	}
	j := &mock.Judge{}

	isDup, err := newTestUsecase(repo, idem, j).Execute(context.Background(), newTestJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isDup {
		t.Fatal("expected duplicate")
	}
	if len(repo.StatusUpdates) != 0 {
		t.Errorf("expected 0 status updates, got %d", len(repo.StatusUpdates))
	}
	if len(j.JudgeCalls) != 0 {
		t.Errorf("expected 0 judge calls, got %d", len(j.JudgeCalls))
	}
}

// Test: idempotency lock acquisition fails.
func TestExecute_LockError(t *testing.T) {
	idem := &mock.IdempotencyStore{
		AcquireLockFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return false, errors.New("redis connection refused")
		},
	}

	_, err := newTestUsecase(&mock.SubmissionRepository{}, idem, &mock.Judge{}).Execute(context.Background(), newTestJob())
	if err == nil || err.Error() != "redis connection refused" {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Test: a judge error marks the submission FAILED.
func TestExecute_JudgeFailure(t *testing.T) {
	repo := &mock.SubmissionRepository{}
	j := &mock.Judge{
		JudgeFn: func(ctx context.Context, code string, testCases []domain.TestCase, limits domain.Limits, opts domain.Options) (*domain.JudgeVerdict, error) {
			return nil, domain.ErrNoInterpreter
		},
	}

	idem := &mock.IdempotencyStore{}
	job := newTestJob()

	isDup, err := newTestUsecase(repo, idem, j).Execute(context.Background(), job)
	if !errors.Is(err, domain.ErrNoInterpreter) {
		t.Fatalf("expected ErrNoInterpreter, got %v", err)
	}
	if isDup {
		t.Fatal("expected not duplicate")
	}
	if len(repo.StatusUpdates) != 2 || repo.StatusUpdates[1].Status != domain.SubmissionFailed {
		t.Fatalf("expected JUDGING then FAILED, got %+v", repo.StatusUpdates)
	}
	if len(repo.Verdicts) != 0 {
		t.Errorf("expected no verdict stored, got %d", len(repo.Verdicts))
	}
	// A dead-lettered job must be redrivable, so its lock is cleared.
	if len(idem.ClearCalls) != 1 || idem.ClearCalls[0] != job.SubmissionID {
		t.Errorf("expected lock cleared for %s, got %v", job.SubmissionID, idem.ClearCalls)
	}
}

// Test: a failed lock release is logged, the verdict still counts.
func TestExecute_ReleaseLockErrorLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	idem := &mock.IdempotencyStore{
		ReleaseLockFn: func(ctx context.Context, id uuid.UUID) error {
			return errors.New("redis: connection reset")
		},
	}
	repo := &mock.SubmissionRepository{}
	uc := usecase.NewJudgeSubmissionUsecase(repo, idem, &mock.Judge{}, zap.New(core))

	if _, err := uc.Execute(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.Verdicts) != 1 {
		t.Fatalf("expected verdict stored, got %d", len(repo.Verdicts))
	}
	entries := logs.FilterMessage("Failed to release idempotency lock").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["error"] != "redis: connection reset" {
		t.Errorf("unexpected log fields %v", entries[0].ContextMap())
	}
}

// Test: UpdateStatus DB failure.
func TestExecute_DBUpdateStatusError(t *testing.T) {
	repo := &mock.SubmissionRepository{
		UpdateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
			return domain.ErrSubmissionNotFound
		},
	}
	j := &mock.Judge{}

	_, err := newTestUsecase(repo, &mock.IdempotencyStore{}, j).Execute(context.Background(), newTestJob())
	if !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
	if len(j.JudgeCalls) != 0 {
		t.Errorf("judge must not run when the status update fails")
	}
}

// Test: SetVerdict DB failure.
func TestExecute_DBSetVerdictError(t *testing.T) {
	repo := &mock.SubmissionRepository{
		SetVerdictFn: func(ctx context.Context, id uuid.UUID, verdict *domain.JudgeVerdict) error {
			return errors.New("disk full")
		},
	}
	idem := &mock.IdempotencyStore{}

	_, err := newTestUsecase(repo, idem, &mock.Judge{}).Execute(context.Background(), newTestJob())
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idem.ReleaseCalls) != 0 {
		t.Errorf("lock must be kept when the verdict was not stored")
	}
}

// Test: configured defaults fill what the job leaves unset.
func TestExecute_AppliesDefaults(t *testing.T) {
	j := &mock.Judge{}
	uc := newTestUsecase(&mock.SubmissionRepository{}, &mock.IdempotencyStore{}, j).
		WithDefaults(domain.Limits{DefaultTimeLimitSeconds: 5, DefaultMemoryLimitMB: 512}, domain.Options{FailFast: false})

	job := newTestJob()
	job.Limits = domain.Limits{DefaultMemoryLimitMB: 64}

	if _, err := uc.Execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := j.JudgeCalls[0]
	if call.Limits.DefaultTimeLimitSeconds != 5 || call.Limits.DefaultMemoryLimitMB != 64 {
		t.Errorf("unexpected limits %+v", call.Limits)
	}
	if call.Options.FailFast {
		t.Error("expected configured fail-fast default")
	}
}

// Test: shutdown mid-judge hands the submission back instead of failing it.
func TestExecute_InterruptedRequeues(t *testing.T) {
	repo := &mock.SubmissionRepository{}
	idem := &mock.IdempotencyStore{}
	ctx, cancel := context.WithCancel(context.Background())
	j := &mock.Judge{
		JudgeFn: func(ctx context.Context, code string, testCases []domain.TestCase, limits domain.Limits, opts domain.Options) (*domain.JudgeVerdict, error) {
			cancel()
			return nil, ctx.Err()
		},
	}

	_, err := newTestUsecase(repo, idem, j).Execute(ctx, newTestJob())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(repo.StatusUpdates) != 2 || repo.StatusUpdates[1].Status != domain.SubmissionQueued {
		t.Fatalf("expected JUDGING then QUEUED, got %+v", repo.StatusUpdates)
	}
	if len(idem.ClearCalls) != 1 {
		t.Errorf("expected lock cleared, got %d calls", len(idem.ClearCalls))
	}
}
