package domain

import "fmt"

// ViolationType classifies a static-analysis finding.
type ViolationType int

const (
	ViolationBannedModule ViolationType = iota + 1
	ViolationUnauthorizedModule
	ViolationBannedFunction
)

// String returns the wire name of t.
func (t ViolationType) String() string {
	switch t {
	case ViolationBannedModule:
		return "BANNED_MODULE"
	case ViolationUnauthorizedModule:
		return "UNAUTHORIZED_MODULE"
	case ViolationBannedFunction:
		return "BANNED_FUNCTION"
	}
	return fmt.Sprintf("ViolationType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t ViolationType) MarshalText() ([]byte, error) {
	switch t {
	case ViolationBannedModule, ViolationUnauthorizedModule, ViolationBannedFunction:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("unknown violation type %d", int(t))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ViolationType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "BANNED_MODULE":
		*t = ViolationBannedModule
	case "UNAUTHORIZED_MODULE":
		*t = ViolationUnauthorizedModule
	case "BANNED_FUNCTION":
		*t = ViolationBannedFunction
	default:
		return fmt.Errorf("unknown violation type %q", string(b))
	}
	return nil
}

// Violation is one rejected reference found in the submitted source.
type Violation struct {
	Type   ViolationType `json:"type"`
	Target string        `json:"target"`
	Line   int           `json:"line"`
}

// AnalysisStatus is the outcome of static analysis.
type AnalysisStatus string

const (
	AnalysisOK          AnalysisStatus = "OK"
	AnalysisRejected    AnalysisStatus = "REJECTED"
	AnalysisSyntaxError AnalysisStatus = "SYNTAX_ERROR"
)

// RejectReason qualifies a rejection that is not caused by a violation.
type RejectReason string

const (
	ReasonNone              RejectReason = ""
	ReasonSizeLimitExceeded RejectReason = "SIZE_LIMIT_EXCEEDED"
)

// AnalysisResult is produced once per submission, before any execution.
type AnalysisResult struct {
	Status     AnalysisStatus `json:"status"`
	Violations []Violation    `json:"violations"`
	Message    string         `json:"message,omitempty"`
	Reason     RejectReason   `json:"reason,omitempty"`
	// Interpreter is the candidate that produced the parse.
	Interpreter string `json:"interpreter,omitempty"`
}

// PolicyInfo describes what a submission may use and how it is limited.
type PolicyInfo struct {
	Language        string   `json:"language"`
	MaxSourceBytes  int      `json:"max_source_bytes"`
	AllowedModules  []string `json:"allowed_modules"`
	BannedModules   []string `json:"banned_modules"`
	BannedFunctions []string `json:"banned_functions"`
	BannedNames     []string `json:"banned_names"`
	DefaultLimits   Limits   `json:"default_limits"`
}
