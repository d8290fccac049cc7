package judge

import (
	"fmt"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

// tally accumulates case verdicts. add returns an updated copy, so a partial
// tally is always a consistent result on its own.
type tally struct {
	status    domain.Verdict
	failedAt  int // position of the first non-AC case, -1 if none
	results   []domain.CaseVerdict
	passed    int
	maxTime   int64
	totalTime int64
	maxMem    int64
	totalMem  int64
}

func newTally(capacity int) tally {
	return tally{
		status:   domain.VerdictAccepted,
		failedAt: -1,
		results:  make([]domain.CaseVerdict, 0, capacity),
	}
}

func (t tally) add(cv domain.CaseVerdict) tally {
	t.results = append(t.results, cv)
	t.totalTime += cv.TimeMs
	t.totalMem += cv.MemoryBytes
	t.maxTime = max(t.maxTime, cv.TimeMs)
	t.maxMem = max(t.maxMem, cv.MemoryBytes)

	if cv.Status.IsAccepted() {
		t.passed++
	} else if t.failedAt < 0 {
		// First failure wins; later failures never overwrite it.
		t.status = cv.Status
		t.failedAt = len(t.results) - 1
	}
	return t
}

func (t tally) failed() bool {
	return t.failedAt >= 0
}

// verdict builds the aggregate for a submission with total test cases.
func (t tally) verdict(total int) *domain.JudgeVerdict {
	v := &domain.JudgeVerdict{
		Status:         t.status,
		PassedCount:    t.passed,
		TotalCount:     total,
		MaxTimeMs:      t.maxTime,
		MaxMemoryBytes: t.maxMem,
		CaseResults:    t.results,
	}
	if n := int64(len(t.results)); n > 0 {
		v.AvgTimeMs = t.totalTime / n
		v.AvgMemoryBytes = t.totalMem / n
	}

	switch {
	case t.failed():
		v.ErrorMessage = failureMessage(t.results[t.failedAt], t.failedAt+1)
	case len(t.results) < total:
		v.Status = domain.VerdictWrongAnswer
		v.ErrorMessage = fmt.Sprintf("Only %d of %d test cases were judged", len(t.results), total)
	}
	return v
}

func failureMessage(cv domain.CaseVerdict, position int) string {
	switch cv.Status {
	case domain.VerdictRuntimeError:
		if cv.Stderr != "" {
			return cv.Stderr
		}
		return fmt.Sprintf("Runtime error on test case %d (exit code %d)", position, cv.ExitCode)
	case domain.VerdictTimeLimitExceeded:
		return fmt.Sprintf("Time limit exceeded on test case %d", position)
	case domain.VerdictMemoryLimitExceeded:
		return fmt.Sprintf("Memory limit exceeded on test case %d", position)
	case domain.VerdictWrongAnswer:
		if cv.OutputTruncated {
			return fmt.Sprintf("Output limit exceeded on test case %d", position)
		}
		if cv.MismatchTokenIndex != nil {
			return fmt.Sprintf("Wrong answer on test case %d (first difference at token %d)", position, *cv.MismatchTokenIndex)
		}
		return fmt.Sprintf("Wrong answer on test case %d", position)
	}
	return fmt.Sprintf("Test case %d failed with %s", position, cv.Status)
}
