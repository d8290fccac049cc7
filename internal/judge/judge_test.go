package judge_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/judge"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository/mock"
)

var testLimits = domain.Limits{DefaultTimeLimitSeconds: 2, DefaultMemoryLimitMB: 128}

func newTestOrchestrator(an *mock.Analyzer, exec *mock.Executor) *judge.Orchestrator {
	return judge.NewOrchestrator(an, exec, zap.NewNop())
}

// echoCases builds cases whose expected output equals their input, so the
// default mock executor (which echoes stdin) accepts them.
func echoCases(ids ...string) []domain.TestCase {
	cases := make([]domain.TestCase, 0, len(ids))
	for i, id := range ids {
		cases = append(cases, domain.TestCase{ID: id, Input: id, ExpectedOutput: id, Order: i})
	}
	return cases
}

// Test: empty test case list is a caller error, not a verdict.
func TestJudge_NoTestCases(t *testing.T) {
	an := &mock.Analyzer{}
	exec := &mock.Executor{}

	_, err := newTestOrchestrator(an, exec).Judge(context.Background(), "print(1)", nil, testLimits, domain.DefaultOptions())
	if !errors.Is(err, domain.ErrNoTestCases) {
		t.Fatalf("expected ErrNoTestCases, got %v", err)
	}
	if len(an.AnalyzeCalls) != 0 {
		t.Error("analyzer must not run without test cases")
	}
}

// Test: non-positive limits are rejected.
func TestJudge_InvalidLimits(t *testing.T) {
	_, err := newTestOrchestrator(&mock.Analyzer{}, &mock.Executor{}).Judge(
		context.Background(), "print(1)", echoCases("a"), domain.Limits{}, domain.DefaultOptions())
	if !errors.Is(err, domain.ErrInvalidLimits) {
		t.Fatalf("expected ErrInvalidLimits, got %v", err)
	}
}

// Test: limits above the ceilings are rejected, per-case overrides included.
func TestJudge_LimitsOutOfBounds(t *testing.T) {
	tests := []struct {
		name   string
		limits domain.Limits
		mutate func(tc *domain.TestCase)
	}{
		{"default time too long", domain.Limits{DefaultTimeLimitSeconds: 31, DefaultMemoryLimitMB: 128}, nil},
		{"default memory too large", domain.Limits{DefaultTimeLimitSeconds: 2, DefaultMemoryLimitMB: 2048}, nil},
		{"case time too long", testLimits, func(tc *domain.TestCase) { tc.TimeLimitSeconds = 86400 }},
		{"case memory too large", testLimits, func(tc *domain.TestCase) { tc.MemoryLimitMB = 1000000 }},
		{"negative case time", testLimits, func(tc *domain.TestCase) { tc.TimeLimitSeconds = -1 }},
		{"negative case memory", testLimits, func(tc *domain.TestCase) { tc.MemoryLimitMB = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &mock.Analyzer{}
			exec := &mock.Executor{}
			cases := echoCases("a", "b")
			if tt.mutate != nil {
				tt.mutate(&cases[1])
			}

			_, err := newTestOrchestrator(an, exec).Judge(context.Background(), "print(1)", cases, tt.limits, domain.DefaultOptions())
			if !errors.Is(err, domain.ErrInvalidLimits) {
				t.Fatalf("expected ErrInvalidLimits, got %v", err)
			}
			if len(an.AnalyzeCalls) != 0 || len(exec.Calls()) != 0 {
				t.Error("nothing may run with out-of-bounds limits")
			}
		})
	}
}

// Test: the ceilings themselves are accepted.
func TestJudge_LimitsAtBounds(t *testing.T) {
	exec := &mock.Executor{}
	cases := echoCases("a")
	cases[0].TimeLimitSeconds = domain.MaxTimeLimitSeconds
	cases[0].MemoryLimitMB = domain.MaxMemoryLimitMB

	if _, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", cases, testLimits, domain.DefaultOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.Calls()) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(exec.Calls()))
	}
}

// Test: every case accepted.
func TestJudge_AllAccepted(t *testing.T) {
	exec := &mock.Executor{}
	v, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", echoCases("1", "2", "3"), testLimits, domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.VerdictAccepted {
		t.Errorf("expected AC, got %s", v.Status)
	}
	if v.PassedCount != 3 || v.TotalCount != 3 || len(v.CaseResults) != 3 {
		t.Errorf("unexpected counts: passed=%d total=%d results=%d", v.PassedCount, v.TotalCount, len(v.CaseResults))
	}
	if v.MaxTimeMs != 42 || v.AvgTimeMs != 42 {
		t.Errorf("unexpected timing: max=%d avg=%d", v.MaxTimeMs, v.AvgTimeMs)
	}
	if v.ErrorMessage != "" {
		t.Errorf("expected no error message, got %q", v.ErrorMessage)
	}
}

// Test: a rejected analysis short-circuits to SE without executing.
func TestJudge_SourceErrorShortCircuits(t *testing.T) {
	an := &mock.Analyzer{
		AnalyzeFn: func(ctx context.Context, code string) (*domain.AnalysisResult, error) {
			return &domain.AnalysisResult{
				Status: domain.AnalysisRejected,
				Violations: []domain.Violation{
					{Type: domain.ViolationBannedFunction, Target: "eval", Line: 1},
					{Type: domain.ViolationBannedModule, Target: "os", Line: 3},
				},
			}, nil
		},
	}
	exec := &mock.Executor{}

	v, err := newTestOrchestrator(an, exec).Judge(
		context.Background(), "import os", echoCases("a", "b", "c"), testLimits, domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.VerdictSourceError {
		t.Fatalf("expected SE, got %s", v.Status)
	}
	if v.TotalCount != 3 || v.PassedCount != 0 || len(v.CaseResults) != 0 {
		t.Errorf("unexpected counts: passed=%d total=%d results=%d", v.PassedCount, v.TotalCount, len(v.CaseResults))
	}
	if !strings.Contains(v.ErrorMessage, "banned module 'os'") {
		t.Errorf("expected the banned module to dominate the message, got %q", v.ErrorMessage)
	}
	if len(v.Violations) != 2 {
		t.Errorf("expected violations passed through, got %+v", v.Violations)
	}
	if len(exec.Calls()) != 0 {
		t.Errorf("executor must not run on SE, got %d calls", len(exec.Calls()))
	}
}

// Test: syntax errors and size rejections produce SE with their own message.
func TestJudge_SourceErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		analysis *domain.AnalysisResult
		want     string
	}{
		{
			name:     "syntax",
			analysis: &domain.AnalysisResult{Status: domain.AnalysisSyntaxError, Message: "line 2: invalid syntax"},
			want:     "Syntax error: line 2: invalid syntax",
		},
		{
			name:     "size",
			analysis: &domain.AnalysisResult{Status: domain.AnalysisRejected, Reason: domain.ReasonSizeLimitExceeded, Message: "too big"},
			want:     "Source code too large: too big",
		},
		{
			name: "function only",
			analysis: &domain.AnalysisResult{Status: domain.AnalysisRejected, Violations: []domain.Violation{
				{Type: domain.ViolationBannedFunction, Target: "exec", Line: 4},
			}},
			want: "Use of banned function 'exec' (line 4)",
		},
		{
			name:     "no detail",
			analysis: &domain.AnalysisResult{Status: domain.AnalysisRejected},
			want:     "Source code rejected by static analysis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &mock.Analyzer{
				AnalyzeFn: func(ctx context.Context, code string) (*domain.AnalysisResult, error) {
					return tt.analysis, nil
				},
			}
			v, err := newTestOrchestrator(an, &mock.Executor{}).Judge(
				context.Background(), "x", echoCases("a"), testLimits, domain.DefaultOptions())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Status != domain.VerdictSourceError {
				t.Errorf("expected SE, got %s", v.Status)
			}
			if v.ErrorMessage != tt.want {
				t.Errorf("message: got %q, want %q", v.ErrorMessage, tt.want)
			}
		})
	}
}

// Test: analyzer configuration errors propagate.
func TestJudge_AnalyzerErrorPropagates(t *testing.T) {
	an := &mock.Analyzer{
		AnalyzeFn: func(ctx context.Context, code string) (*domain.AnalysisResult, error) {
			return nil, domain.ErrNoInterpreter
		},
	}
	_, err := newTestOrchestrator(an, &mock.Executor{}).Judge(
		context.Background(), "x", echoCases("a"), testLimits, domain.DefaultOptions())
	if !errors.Is(err, domain.ErrNoInterpreter) {
		t.Fatalf("expected ErrNoInterpreter, got %v", err)
	}
}

// Test: public cases run first, relative order kept inside each group.
func TestJudge_PublicFirstOrdering(t *testing.T) {
	exec := &mock.Executor{}
	cases := []domain.TestCase{
		{ID: "p1", Input: "p1", ExpectedOutput: "p1"},
		{ID: "P1", Input: "P1", ExpectedOutput: "P1", IsPublic: true},
		{ID: "p2", Input: "p2", ExpectedOutput: "p2"},
		{ID: "P2", Input: "P2", ExpectedOutput: "P2", IsPublic: true},
	}

	v, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", cases, testLimits, domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"P1", "P2", "p1", "p2"}
	calls := exec.Calls()
	if len(calls) != len(want) {
		t.Fatalf("expected %d executions, got %d", len(want), len(calls))
	}
	for i, id := range want {
		if calls[i].Stdin != id {
			t.Errorf("execution %d: got %s, want %s", i, calls[i].Stdin, id)
		}
		if v.CaseResults[i].TestCaseID != id {
			t.Errorf("result %d: got %s, want %s", i, v.CaseResults[i].TestCaseID, id)
		}
	}
	if cases[0].ID != "p1" {
		t.Error("caller's slice must not be reordered")
	}
}

// scriptedExecutor returns a fixed result per stdin.
func scriptedExecutor(results map[string]*domain.ExecutionResult) *mock.Executor {
	return &mock.Executor{
		ExecuteFn: func(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error) {
			if r, ok := results[req.Stdin]; ok {
				return r, nil
			}
			return &domain.ExecutionResult{Status: domain.RunOK, Stdout: req.Stdin, ElapsedMs: 10, PeakMemoryBytes: 1000}, nil
		},
	}
}

// Test: first failing status wins even when later cases fail differently.
func TestJudge_FirstFailureWins(t *testing.T) {
	exec := scriptedExecutor(map[string]*domain.ExecutionResult{
		"b": {Status: domain.RunOK, Stdout: "wrong", ElapsedMs: 30, PeakMemoryBytes: 3000},
		"c": {Status: domain.RunTimeLimitExceeded, ElapsedMs: 2000, PeakMemoryBytes: 5000, ExitCode: -1},
	})

	v, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", echoCases("a", "b", "c"), testLimits, domain.Options{FailFast: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.VerdictWrongAnswer {
		t.Errorf("expected WA, got %s", v.Status)
	}
	if len(v.CaseResults) != 3 {
		t.Fatalf("expected all 3 cases executed without fail-fast, got %d", len(v.CaseResults))
	}
	if v.CaseResults[2].Status != domain.VerdictTimeLimitExceeded {
		t.Errorf("expected TLE on case c, got %s", v.CaseResults[2].Status)
	}
	if v.PassedCount != 1 {
		t.Errorf("expected 1 passed, got %d", v.PassedCount)
	}
	if idx := v.CaseResults[1].MismatchTokenIndex; idx == nil || *idx != 0 {
		t.Errorf("expected mismatch at token 0, got %v", idx)
	}
	if v.MaxTimeMs != 2000 || v.AvgTimeMs != (10+30+2000)/3 {
		t.Errorf("unexpected timing: max=%d avg=%d", v.MaxTimeMs, v.AvgTimeMs)
	}
	if v.MaxMemoryBytes != 5000 || v.AvgMemoryBytes != (1000+3000+5000)/3 {
		t.Errorf("unexpected memory: max=%d avg=%d", v.MaxMemoryBytes, v.AvgMemoryBytes)
	}
	if !strings.Contains(v.ErrorMessage, "Wrong answer on test case 2") {
		t.Errorf("unexpected message %q", v.ErrorMessage)
	}
}

// Test: fail-fast records the failing case and skips the rest.
func TestJudge_FailFastStopsAfterFailure(t *testing.T) {
	exec := scriptedExecutor(map[string]*domain.ExecutionResult{
		"b": {Status: domain.RunMemoryLimitExceeded, ElapsedMs: 100, PeakMemoryBytes: 300 << 20, ExitCode: -1},
	})

	v, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", echoCases("a", "b", "c", "d"), testLimits, domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.VerdictMemoryLimitExceeded {
		t.Errorf("expected MLE, got %s", v.Status)
	}
	if len(exec.Calls()) != 2 || len(v.CaseResults) != 2 {
		t.Errorf("expected 2 executions, got %d calls / %d results", len(exec.Calls()), len(v.CaseResults))
	}
	if v.TotalCount != 4 || v.PassedCount != 1 {
		t.Errorf("unexpected counts: passed=%d total=%d", v.PassedCount, v.TotalCount)
	}
	// Averages use executed cases only.
	if v.AvgTimeMs != (10+100)/2 {
		t.Errorf("expected avg over executed cases, got %d", v.AvgTimeMs)
	}
}

// Test: runtime errors surface the traceback tail as the error message.
func TestJudge_RuntimeErrorMessage(t *testing.T) {
	exec := scriptedExecutor(map[string]*domain.ExecutionResult{
		"a": {Status: domain.RunRuntimeError, Stderr: "Traceback (most recent call last):\n  File \"main.py\", line 1\nZeroDivisionError: division by zero\n", ExitCode: 1},
	})

	v, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", echoCases("a"), testLimits, domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.VerdictRuntimeError {
		t.Fatalf("expected RE, got %s", v.Status)
	}
	if !strings.HasSuffix(v.ErrorMessage, "ZeroDivisionError: division by zero") {
		t.Errorf("unexpected message %q", v.ErrorMessage)
	}
	if v.CaseResults[0].ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", v.CaseResults[0].ExitCode)
	}
}

// Test: runtime error without stderr still gets a message.
func TestJudge_RuntimeErrorWithoutStderr(t *testing.T) {
	exec := scriptedExecutor(map[string]*domain.ExecutionResult{
		"a": {Status: domain.RunRuntimeError, ExitCode: 3},
	})

	v, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", echoCases("a"), testLimits, domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ErrorMessage != "Runtime error on test case 1 (exit code 3)" {
		t.Errorf("unexpected message %q", v.ErrorMessage)
	}
}

// Test: executor errors (caller cancellation) abort the judge call.
func TestJudge_ExecutorErrorPropagates(t *testing.T) {
	exec := &mock.Executor{
		ExecuteFn: func(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error) {
			return nil, context.Canceled
		},
	}
	_, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", echoCases("a"), testLimits, domain.DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// Test: per-case overrides replace the default limits.
func TestJudge_PerCaseLimits(t *testing.T) {
	exec := &mock.Executor{}
	cases := echoCases("a", "b")
	cases[1].TimeLimitSeconds = 0.5
	cases[1].MemoryLimitMB = 32

	if _, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", cases, testLimits, domain.DefaultOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := exec.Calls()
	if calls[0].TimeLimitSeconds != 2 || calls[0].MemoryLimitMB != 128 {
		t.Errorf("case a: expected defaults, got %v/%d", calls[0].TimeLimitSeconds, calls[0].MemoryLimitMB)
	}
	if calls[1].TimeLimitSeconds != 0.5 || calls[1].MemoryLimitMB != 32 {
		t.Errorf("case b: expected overrides, got %v/%d", calls[1].TimeLimitSeconds, calls[1].MemoryLimitMB)
	}
}

// Test: a run whose stdout overflowed the capture is WA without comparing.
func TestJudge_TruncatedOutputIsWrongAnswer(t *testing.T) {
	exec := scriptedExecutor(map[string]*domain.ExecutionResult{
		"a": {Status: domain.RunOK, Stdout: "a", StdoutTruncated: true, ElapsedMs: 10, PeakMemoryBytes: 1000},
	})

	v, err := newTestOrchestrator(&mock.Analyzer{}, exec).Judge(
		context.Background(), "code", echoCases("a"), testLimits, domain.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.VerdictWrongAnswer {
		t.Fatalf("expected WA, got %s", v.Status)
	}
	cv := v.CaseResults[0]
	if !cv.OutputTruncated || cv.MismatchTokenIndex != nil {
		t.Errorf("expected truncation flag and no mismatch index, got %+v", cv)
	}
	if v.ErrorMessage != "Output limit exceeded on test case 1" {
		t.Errorf("unexpected message %q", v.ErrorMessage)
	}
}
