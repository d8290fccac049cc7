// Package judge sequences static analysis, sandboxed execution and output
// comparison for one submission and aggregates the per-case outcomes.
package judge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/comparator"
	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/metrics"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

var _ repository.Judge = (*Orchestrator)(nil)

// Orchestrator is the judge entry point. It is safe for concurrent use as
// long as its Analyzer and Executor are.
type Orchestrator struct {
	analyzer repository.Analyzer
	executor repository.Executor
	policy   domain.PolicyInfo
	logger   *zap.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(analyzer repository.Analyzer, executor repository.Executor, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		analyzer: analyzer,
		executor: executor,
		logger:   logger,
	}
}

// Judge analyzes code once and, if it is accepted, runs it against every test
// case, public cases first. Errors are returned only for misuse (no test
// cases, bad limits, no interpreter) or caller cancellation; everything the
// submission does wrong is expressed in the verdict.
func (o *Orchestrator) Judge(
	ctx context.Context,
	code string,
	testCases []domain.TestCase,
	limits domain.Limits,
	opts domain.Options,
) (*domain.JudgeVerdict, error) {
	if len(testCases) == 0 {
		return nil, domain.ErrNoTestCases
	}
	if !limits.Valid() || !limits.Bounded(testCases) {
		return nil, domain.ErrInvalidLimits
	}

	analysis, err := o.analyzer.Analyze(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if analysis.Status != domain.AnalysisOK {
		recordRejection(analysis)
		return &domain.JudgeVerdict{
			Status:       domain.VerdictSourceError,
			TotalCount:   len(testCases),
			ErrorMessage: sourceErrorMessage(analysis),
			CaseResults:  []domain.CaseVerdict{},
			Violations:   analysis.Violations,
		}, nil
	}

	acc, err := o.runCases(ctx, code, orderCases(testCases), limits, opts)
	if err != nil {
		return nil, err
	}
	return acc.verdict(len(testCases)), nil
}

// orderCases returns the cases public-first, keeping the caller's order
// within each group.
func orderCases(testCases []domain.TestCase) []domain.TestCase {
	ordered := make([]domain.TestCase, len(testCases))
	copy(ordered, testCases)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].IsPublic && !ordered[j].IsPublic
	})
	return ordered
}

// runCases folds the ordered cases into a tally, stopping after the first
// failing case when opts.FailFast is set.
func (o *Orchestrator) runCases(
	ctx context.Context,
	code string,
	ordered []domain.TestCase,
	limits domain.Limits,
	opts domain.Options,
) (tally, error) {
	acc := newTally(len(ordered))
	for _, tc := range ordered {
		cv, err := o.runCase(ctx, code, tc, limits)
		if err != nil {
			return acc, err
		}
		acc = acc.add(cv)
		if opts.FailFast && acc.failed() {
			break
		}
	}
	return acc, nil
}

func (o *Orchestrator) runCase(ctx context.Context, code string, tc domain.TestCase, limits domain.Limits) (domain.CaseVerdict, error) {
	timeLimit, memoryLimit := limits.For(tc)
	res, err := o.executor.Execute(ctx, &domain.ExecutionRequest{
		SourceCode:       code,
		Stdin:            tc.Input,
		TimeLimitSeconds: timeLimit,
		MemoryLimitMB:    memoryLimit,
	})
	if err != nil {
		return domain.CaseVerdict{}, fmt.Errorf("execute case %s: %w", tc.ID, err)
	}

	cv := domain.CaseVerdict{
		TestCaseID:  tc.ID,
		IsPublic:    tc.IsPublic,
		TimeMs:      res.ElapsedMs,
		MemoryBytes: res.PeakMemoryBytes,
		ExitCode:    res.ExitCode,
	}
	if v, ok := res.Status.Verdict(); ok {
		cv.Status = v
		if v == domain.VerdictRuntimeError {
			cv.Stderr = tailLines(res.Stderr, stderrTailLines, stderrTailBytes)
		}
	} else if res.StdoutTruncated {
		cv.Status = domain.VerdictWrongAnswer
		cv.OutputTruncated = true
	} else {
		cmp := comparator.Compare(tc.ExpectedOutput, res.Stdout)
		if cmp.Matched {
			cv.Status = domain.VerdictAccepted
		} else {
			cv.Status = domain.VerdictWrongAnswer
			idx := cmp.MismatchTokenIndex
			cv.MismatchTokenIndex = &idx
		}
	}

	metrics.CasesTotal.WithLabelValues(string(cv.Status)).Inc()
	o.logger.Debug("Test case judged",
		zap.String("case_id", tc.ID),
		zap.Bool("public", tc.IsPublic),
		zap.String("status", string(cv.Status)),
		zap.Int64("time_ms", cv.TimeMs),
		zap.Int64("memory_bytes", cv.MemoryBytes),
	)
	return cv, nil
}

// sourceErrorMessage summarizes a failed analysis, preferring module
// violations over function violations over a generic message.
func sourceErrorMessage(res *domain.AnalysisResult) string {
	switch res.Status {
	case domain.AnalysisSyntaxError:
		return "Syntax error: " + res.Message
	case domain.AnalysisRejected:
		if res.Reason == domain.ReasonSizeLimitExceeded {
			return "Source code too large: " + res.Message
		}
	}

	var dominant *domain.Violation
	for i := range res.Violations {
		v := &res.Violations[i]
		if dominant == nil || violationRank(v.Type) < violationRank(dominant.Type) {
			dominant = v
		}
	}
	if dominant == nil {
		return "Source code rejected by static analysis"
	}

	var msg string
	switch dominant.Type {
	case domain.ViolationBannedModule:
		msg = fmt.Sprintf("Use of banned module '%s' (line %d)", dominant.Target, dominant.Line)
	case domain.ViolationUnauthorizedModule:
		msg = fmt.Sprintf("Module '%s' is not allowed (line %d)", dominant.Target, dominant.Line)
	case domain.ViolationBannedFunction:
		msg = fmt.Sprintf("Use of banned function '%s' (line %d)", dominant.Target, dominant.Line)
	}
	if n := len(res.Violations) - 1; n > 0 {
		msg += fmt.Sprintf(" and %d more violation(s)", n)
	}
	return msg
}

func violationRank(t domain.ViolationType) int {
	switch t {
	case domain.ViolationBannedModule:
		return 0
	case domain.ViolationUnauthorizedModule:
		return 1
	case domain.ViolationBannedFunction:
		return 2
	}
	return 3
}

func recordRejection(res *domain.AnalysisResult) {
	if res.Status == domain.AnalysisSyntaxError {
		metrics.Rejections.WithLabelValues("SYNTAX_ERROR").Inc()
		return
	}
	if res.Reason != domain.ReasonNone {
		metrics.Rejections.WithLabelValues(string(res.Reason)).Inc()
	}
	for _, v := range res.Violations {
		metrics.Rejections.WithLabelValues(v.Type.String()).Inc()
	}
}

const (
	stderrTailLines = 20
	stderrTailBytes = 2048
)

// tailLines keeps the end of a traceback, where the exception is.
func tailLines(s string, maxLines, maxBytes int) string {
	s = strings.TrimRight(s, "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := strings.Join(lines, "\n")
	if len(out) > maxBytes {
		out = strings.ToValidUTF8(out[len(out)-maxBytes:], "")
	}
	return out
}
