package domain

// Verdict is the final classification of a submission or of a single test case.
type Verdict string

const (
	VerdictAccepted            Verdict = "AC"
	VerdictWrongAnswer         Verdict = "WA"
	VerdictTimeLimitExceeded   Verdict = "TLE"
	VerdictMemoryLimitExceeded Verdict = "MLE"
	VerdictRuntimeError        Verdict = "RE"
	VerdictSourceError         Verdict = "SE"
)

// IsAccepted reports whether v is AC.
func (v Verdict) IsAccepted() bool {
	return v == VerdictAccepted
}

// RunStatus is the raw outcome of one sandboxed process.
type RunStatus string

const (
	RunOK                  RunStatus = "OK"
	RunTimeLimitExceeded   RunStatus = "TLE"
	RunMemoryLimitExceeded RunStatus = "MLE"
	RunRuntimeError        RunStatus = "RE"
)

// Verdict maps a non-OK run status onto the case verdict of the same name.
// OK has no direct verdict: it needs output comparison first.
func (s RunStatus) Verdict() (Verdict, bool) {
	switch s {
	case RunTimeLimitExceeded:
		return VerdictTimeLimitExceeded, true
	case RunMemoryLimitExceeded:
		return VerdictMemoryLimitExceeded, true
	case RunRuntimeError:
		return VerdictRuntimeError, true
	case RunOK:
		return "", false
	}
	return VerdictRuntimeError, true
}

// TestCase is one input/expected-output pair supplied by the caller.
type TestCase struct {
	ID             string `json:"id" toml:"id"`
	Input          string `json:"input" toml:"input"`
	ExpectedOutput string `json:"expected_output" toml:"expected_output"`
	IsPublic       bool   `json:"is_public" toml:"is_public"`
	Order          int    `json:"order" toml:"order"`

	// Optional per-case overrides; zero means "use Limits".
	TimeLimitSeconds float64 `json:"time_limit_seconds,omitempty" toml:"time_limit_seconds"`
	MemoryLimitMB    int     `json:"memory_limit_mb,omitempty" toml:"memory_limit_mb"`
}

// Limits are the default resource ceilings for every case of one judge call.
type Limits struct {
	DefaultTimeLimitSeconds float64 `json:"default_time_limit_seconds" toml:"time_limit_seconds"`
	DefaultMemoryLimitMB    int     `json:"default_memory_limit_mb" toml:"memory_limit_mb"`
}

// Upper bounds for any time or memory limit a caller may request.
const (
	MaxTimeLimitSeconds = 30.0
	MaxMemoryLimitMB    = 1024
)

// Valid reports whether both limits are positive.
func (l Limits) Valid() bool {
	return l.DefaultTimeLimitSeconds > 0 && l.DefaultMemoryLimitMB > 0
}

// Bounded reports whether every limit set on l and on testCases lies within
// [0, max]. Unset (zero) values pass; use Valid for the defaults.
func (l Limits) Bounded(testCases []TestCase) bool {
	if !timeInBounds(l.DefaultTimeLimitSeconds) || !memoryInBounds(l.DefaultMemoryLimitMB) {
		return false
	}
	for _, tc := range testCases {
		if !timeInBounds(tc.TimeLimitSeconds) || !memoryInBounds(tc.MemoryLimitMB) {
			return false
		}
	}
	return true
}

// Written so NaN fails.
func timeInBounds(v float64) bool { return v >= 0 && v <= MaxTimeLimitSeconds }

func memoryInBounds(v int) bool { return v >= 0 && v <= MaxMemoryLimitMB }

// Or fills unset limits from fallback.
func (l Limits) Or(fallback Limits) Limits {
	if l.DefaultTimeLimitSeconds <= 0 {
		l.DefaultTimeLimitSeconds = fallback.DefaultTimeLimitSeconds
	}
	if l.DefaultMemoryLimitMB <= 0 {
		l.DefaultMemoryLimitMB = fallback.DefaultMemoryLimitMB
	}
	return l
}

// For returns the effective limits of tc.
func (l Limits) For(tc TestCase) (timeLimitSeconds float64, memoryLimitMB int) {
	timeLimitSeconds, memoryLimitMB = l.DefaultTimeLimitSeconds, l.DefaultMemoryLimitMB
	if tc.TimeLimitSeconds > 0 {
		timeLimitSeconds = tc.TimeLimitSeconds
	}
	if tc.MemoryLimitMB > 0 {
		memoryLimitMB = tc.MemoryLimitMB
	}
	return timeLimitSeconds, memoryLimitMB
}

// Options tune orchestration of a judge call.
type Options struct {
	// FailFast stops running cases after the first non-AC case is recorded.
	FailFast bool `json:"fail_fast"`
}

// DefaultOptions returns the options used when the caller has no preference.
func DefaultOptions() Options {
	return Options{FailFast: true}
}

// ExecutionRequest is passed to the sandbox executor for a single case.
type ExecutionRequest struct {
	SourceCode       string
	Stdin            string
	TimeLimitSeconds float64
	MemoryLimitMB    int
	// WorkRoot overrides the executor's configured parent directory for the
	// per-run workspace when non-empty.
	WorkRoot string
}

// ExecutionResult is the raw outcome of one sandboxed run.
type ExecutionResult struct {
	Status RunStatus
	Stdout string
	// StdoutTruncated is set when the run printed more than the executor
	// captures; Stdout then holds only the captured prefix.
	StdoutTruncated bool
	Stderr          string
	ElapsedMs       int64
	PeakMemoryBytes int64
	ExitCode        int
}

// CaseVerdict is the judged outcome of one test case.
type CaseVerdict struct {
	TestCaseID         string  `json:"test_case_id"`
	IsPublic           bool    `json:"is_public"`
	Status             Verdict `json:"status"`
	TimeMs             int64   `json:"time_ms"`
	MemoryBytes        int64   `json:"memory_bytes"`
	ExitCode           int     `json:"exit_code"`
	MismatchTokenIndex *int    `json:"mismatch_token_index,omitempty"`
	OutputTruncated    bool    `json:"output_truncated,omitempty"`
	Stderr             string  `json:"stderr,omitempty"`
}

// JudgeVerdict is the aggregated result of one judge call.
type JudgeVerdict struct {
	Status         Verdict       `json:"status"`
	PassedCount    int           `json:"passed_count"`
	TotalCount     int           `json:"total_count"`
	MaxTimeMs      int64         `json:"max_time_ms"`
	AvgTimeMs      int64         `json:"avg_time_ms"`
	MaxMemoryBytes int64         `json:"max_memory_bytes"`
	AvgMemoryBytes int64         `json:"avg_memory_bytes"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CaseResults    []CaseVerdict `json:"case_results"`
	Violations     []Violation   `json:"violations,omitempty"`
}
