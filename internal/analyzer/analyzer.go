// Package analyzer rejects submitted Python source before it runs: oversized
// files, syntax errors, and references to banned modules or functions.
package analyzer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

//go:embed astdump.py
var astDumpScript string

const (
	// DefaultTimeout bounds one parse attempt by one interpreter candidate.
	DefaultTimeout = 10 * time.Second

	maxDumpBytes = 4 << 20
)

// DefaultInterpreterCandidates lists the interpreters tried, in order, when
// none are configured.
var DefaultInterpreterCandidates = []string{"python3", "python3.12", "python3.11", "python3.10", "python"}

// Config configures an Analyzer.
type Config struct {
	Policy                Policy
	InterpreterCandidates []string
	Timeout               time.Duration
}

// Analyzer parses submissions with an external interpreter and applies a
// Policy to the imports and call sites it reports.
type Analyzer struct {
	policy     Policy
	candidates [][]string
	names      []string
	timeout    time.Duration
	logger     *zap.Logger

	// preferred is the index of the last candidate that produced a result.
	preferred atomic.Int32
}

// New creates an Analyzer. Candidates are shell-split so that an entry may
// carry interpreter flags.
func New(cfg Config, logger *zap.Logger) (*Analyzer, error) {
	names := cfg.InterpreterCandidates
	if len(names) == 0 {
		names = DefaultInterpreterCandidates
	}
	candidates := make([][]string, 0, len(names))
	kept := make([]string, 0, len(names))
	for _, name := range names {
		argv, err := shlex.Split(name)
		if err != nil {
			return nil, fmt.Errorf("interpreter candidate %q: %w", name, err)
		}
		if len(argv) == 0 {
			continue
		}
		candidates = append(candidates, argv)
		kept = append(kept, name)
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoInterpreter
	}

	if cfg.Policy.AllowedModules == nil {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Policy.MaxBytes <= 0 {
		cfg.Policy.MaxBytes = DefaultMaxBytes
	}
	if cfg.Policy.BannedNames == nil {
		cfg.Policy.BannedNames = mapset.NewSet(defaultBannedNames...)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Analyzer{
		policy:     cfg.Policy,
		candidates: candidates,
		names:      kept,
		timeout:    cfg.Timeout,
		logger:     logger,
	}, nil
}

// Analyze checks code against the policy. The returned error is non-nil only
// when no interpreter candidate could parse the code at all.
func (a *Analyzer) Analyze(ctx context.Context, code string) (*domain.AnalysisResult, error) {
	if len(code) > a.policy.MaxBytes {
		return &domain.AnalysisResult{
			Status:     domain.AnalysisRejected,
			Violations: []domain.Violation{},
			Reason:     domain.ReasonSizeLimitExceeded,
			Message:    fmt.Sprintf("source is %d bytes, limit is %d bytes", len(code), a.policy.MaxBytes),
		}, nil
	}

	dump, interpreter, err := a.parse(ctx, code)
	if err != nil {
		return nil, err
	}

	if !dump.OK {
		msg := dump.Error
		if dump.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", dump.Line, dump.Error)
		}
		return &domain.AnalysisResult{
			Status:      domain.AnalysisSyntaxError,
			Violations:  []domain.Violation{},
			Message:     msg,
			Interpreter: interpreter,
		}, nil
	}

	violations := a.check(dump.Events)
	res := &domain.AnalysisResult{
		Status:      domain.AnalysisOK,
		Violations:  violations,
		Interpreter: interpreter,
	}
	if len(violations) > 0 {
		res.Status = domain.AnalysisRejected
		res.Message = fmt.Sprintf("%d disallowed reference(s)", len(violations))
	}
	return res, nil
}

// Policy returns the policy in effect.
func (a *Analyzer) Policy() Policy {
	return a.policy
}

type astEvent struct {
	Kind   string   `json:"kind"`
	Module string   `json:"module"`
	Name   string   `json:"name"`
	Alias  string   `json:"alias"`
	Chain  []string `json:"chain"`
	Line   int      `json:"line"`
	Col    int      `json:"col"`
}

type astDump struct {
	OK      bool       `json:"ok"`
	Error   string     `json:"error"`
	Line    int        `json:"line"`
	Version string     `json:"version"`
	Events  []astEvent `json:"events"`
}

// parse runs the dump script with each candidate until one answers with a
// well-formed document, starting from the last candidate that worked.
func (a *Analyzer) parse(ctx context.Context, code string) (*astDump, string, error) {
	start := int(a.preferred.Load())
	var errs []error
	for i := range a.candidates {
		idx := (start + i) % len(a.candidates)
		dump, err := a.runCandidate(ctx, a.candidates[idx], code)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			a.logger.Debug("Interpreter candidate failed",
				zap.String("interpreter", a.names[idx]),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", a.names[idx], err))
			continue
		}
		a.preferred.Store(int32(idx))
		return dump, a.names[idx], nil
	}
	return nil, "", fmt.Errorf("%w: %w", domain.ErrNoInterpreter, errors.Join(errs...))
}

func (a *Analyzer) runCandidate(ctx context.Context, argv []string, code string) (*astDump, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := append(append([]string{}, argv[1:]...), "-I", "-S", "-c", astDumpScript)
	cmd := exec.CommandContext(runCtx, argv[0], args...)
	cmd.Stdin = strings.NewReader(code)
	cmd.Env = []string{"PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1"}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("parse timed out after %s", a.timeout)
		}
		return nil, fmt.Errorf("run: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() > maxDumpBytes {
		return nil, fmt.Errorf("dump exceeds %d bytes", maxDumpBytes)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("malformed dump: %w", err)
	}
	if _, ok := raw["ok"]; !ok {
		return nil, errors.New("malformed dump: missing ok field")
	}
	var dump astDump
	if err := json.Unmarshal(stdout.Bytes(), &dump); err != nil {
		return nil, fmt.Errorf("malformed dump: %w", err)
	}
	return &dump, nil
}

// check applies the policy to the parsed events. Aliases are collected over
// the whole file first, since a function body may call a name that is
// imported further down.
func (a *Analyzer) check(events []astEvent) []domain.Violation {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Line != events[j].Line {
			return events[i].Line < events[j].Line
		}
		return events[i].Col < events[j].Col
	})

	// The module-level __builtins__ name is the builtins module.
	aliases := map[string]string{"__builtins__": "builtins"}
	for _, ev := range events {
		switch ev.Kind {
		case "import":
			if ev.Alias != "" {
				aliases[ev.Alias] = ev.Module
			} else {
				root := rootModule(ev.Module)
				aliases[root] = root
			}
		case "from":
			bound := ev.Alias
			if bound == "" {
				bound = ev.Name
			}
			aliases[bound] = ev.Module + "." + ev.Name
		}
	}

	type position struct{ line, col int }
	reported := make(map[position]bool)

	violations := []domain.Violation{}
	for _, ev := range events {
		switch ev.Kind {
		case "import", "from":
			if v, ok := a.checkModule(ev.Module, ev.Line); ok {
				violations = append(violations, v)
			}
			if ev.Kind == "from" {
				qualified := ev.Module + "." + ev.Name
				if a.bannedFunction(qualified) {
					violations = append(violations, domain.Violation{
						Type:   domain.ViolationBannedFunction,
						Target: qualified,
						Line:   ev.Line,
					})
				}
			}
		case "call":
			if len(ev.Chain) == 0 {
				continue
			}
			if target, ok := a.resolveCall(ev.Chain, aliases); ok {
				violations = append(violations, domain.Violation{
					Type:   domain.ViolationBannedFunction,
					Target: target,
					Line:   ev.Line,
				})
				reported[position{ev.Line, ev.Col}] = true
			}
		case "name":
			// A banned call through the same expression is already reported.
			if !a.policy.BannedNames.Contains(ev.Name) || reported[position{ev.Line, ev.Col}] {
				continue
			}
			violations = append(violations, domain.Violation{
				Type:   domain.ViolationBannedFunction,
				Target: ev.Name,
				Line:   ev.Line,
			})
			reported[position{ev.Line, ev.Col}] = true
		}
	}
	return violations
}

func (a *Analyzer) checkModule(module string, line int) (domain.Violation, bool) {
	if strings.HasPrefix(module, ".") {
		return domain.Violation{Type: domain.ViolationUnauthorizedModule, Target: module, Line: line}, true
	}
	root := rootModule(module)
	switch {
	case a.policy.BannedModules.Contains(root):
		return domain.Violation{Type: domain.ViolationBannedModule, Target: root, Line: line}, true
	case !a.policy.AllowedModules.Contains(root):
		return domain.Violation{Type: domain.ViolationUnauthorizedModule, Target: root, Line: line}, true
	}
	return domain.Violation{}, false
}

// resolveCall expands the first element of a call chain through the import
// aliases and reports whether the result names a banned function.
func (a *Analyzer) resolveCall(chain []string, aliases map[string]string) (string, bool) {
	head := chain[0]
	if bound, ok := aliases[head]; ok {
		head = bound
	}
	qualified := strings.Join(append([]string{head}, chain[1:]...), ".")
	if a.bannedFunction(qualified) {
		return qualified, true
	}
	return "", false
}

func (a *Analyzer) bannedFunction(qualified string) bool {
	if a.policy.BannedFunctions.Contains(qualified) {
		return true
	}
	// builtins.eval and friends
	if name, ok := strings.CutPrefix(qualified, "builtins."); ok {
		return a.policy.BannedFunctions.Contains(name)
	}
	return false
}
