package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

const (
	// DefaultPollInterval is how often the supervisor samples a live child.
	DefaultPollInterval = 20 * time.Millisecond

	// DefaultInterpreter runs the submission in isolated mode without
	// writing bytecode.
	DefaultInterpreter = "python3 -I -B"

	sourceFileName = "main.py"
	workDirPrefix  = "sentinel-"

	// waitDelay bounds how long Wait keeps draining pipes after the child
	// is gone.
	waitDelay = 2 * time.Second
)

// Config configures a SandboxExecutor.
type Config struct {
	// Interpreter is the command line used to run main.py; it is shell-split.
	Interpreter  string
	WorkRoot     string
	PollInterval time.Duration

	// MaxStdoutBytes caps captured stdout; zero selects DefaultMaxStdoutBytes.
	MaxStdoutBytes int
}

// SandboxExecutor runs one submission against one input in its own process
// and working directory, enforcing wall-clock and resident-memory ceilings
// by polling.
type SandboxExecutor struct {
	argv         []string
	workRoot     string
	pollInterval time.Duration
	maxStdout    int
	sampler      MemorySampler
	logger       *zap.Logger
}

// NewSandboxExecutor creates a new sandbox executor.
func NewSandboxExecutor(cfg Config, logger *zap.Logger) (*SandboxExecutor, error) {
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	argv, err := shlex.Split(cfg.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("interpreter %q: %w", cfg.Interpreter, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("interpreter %q: empty command", cfg.Interpreter)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxStdoutBytes <= 0 {
		cfg.MaxStdoutBytes = DefaultMaxStdoutBytes
	}

	sampler, err := NewProcSampler()
	if err != nil {
		logger.Warn("procfs unavailable, memory is only measured after exit", zap.Error(err))
		sampler = noopSampler{}
	}

	return &SandboxExecutor{
		argv:         argv,
		workRoot:     cfg.WorkRoot,
		pollInterval: cfg.PollInterval,
		maxStdout:    cfg.MaxStdoutBytes,
		sampler:      sampler,
		logger:       logger,
	}, nil
}

// WithSampler replaces the memory sampler. Intended for tests.
func (e *SandboxExecutor) WithSampler(s MemorySampler) *SandboxExecutor {
	e.sampler = s
	return e
}

// Execute runs req.SourceCode with req.Stdin and classifies the outcome.
// Every failure of the submission or of the spawn is reported in the result;
// the error is non-nil only when ctx is cancelled by the caller.
func (e *SandboxExecutor) Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error) {
	root := req.WorkRoot
	if root == "" {
		root = e.workRoot
	}

	ws, err := NewWorkspace(root, workDirPrefix)
	if err != nil {
		return spawnFailure(err), nil
	}
	defer func() {
		if err := ws.Close(); err != nil {
			e.logger.Warn("Failed to remove workspace", zap.String("dir", ws.Dir()), zap.Error(err))
		}
	}()

	if _, err := ws.WriteFile(sourceFileName, req.SourceCode); err != nil {
		return spawnFailure(err), nil
	}

	return e.run(ctx, req, ws)
}

func (e *SandboxExecutor) run(ctx context.Context, req *domain.ExecutionRequest, ws *Workspace) (*domain.ExecutionResult, error) {
	timeLimit := time.Duration(req.TimeLimitSeconds * float64(time.Second))
	memoryLimit := int64(req.MemoryLimitMB) << 20

	args := append(append([]string{}, e.argv[1:]...), sourceFileName)
	cmd := exec.Command(e.argv[0], args...)
	cmd.Dir = ws.Dir()
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + ws.Dir(),
		"LANG=C.UTF-8",
		"PYTHONIOENCODING=utf-8",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONHASHSEED=0",
	}
	// Own process group so the whole tree can be killed at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = strings.NewReader(req.Stdin)
	cmd.WaitDelay = waitDelay

	stdout := newLimitedBuffer(e.maxStdout)
	stderr := newLimitedBuffer(maxStderrBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return spawnFailure(err), nil
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	sv := supervision{
		pid:         pid,
		start:       start,
		timeLimit:   timeLimit,
		memoryLimit: memoryLimit,
	}
	e.supervise(ctx, &sv, done)

	if !sv.exited {
		killGroup(cmd, pid)
		sv.waitErr = <-done
	}

	if ru, ok := processRusage(cmd); ok && ru > sv.peak {
		sv.peak = ru
	}

	errText := strings.ReplaceAll(stderr.String(), ws.Dir()+string(filepath.Separator), "")
	if stderr.Truncated() {
		errText += stderrTruncatedMsg
	}
	result := &domain.ExecutionResult{
		Stdout:          stdout.String(),
		StdoutTruncated: stdout.Truncated(),
		Stderr:          errText,
		ElapsedMs:       sv.elapsed.Milliseconds(),
		PeakMemoryBytes: sv.peak,
		ExitCode:        -1,
	}

	if sv.cancelled {
		e.logger.Debug("Sandbox run cancelled", zap.Int("pid", pid))
		return result, ctx.Err()
	}

	switch {
	case sv.status != "":
		result.Status = sv.status
	case sv.peak > memoryLimit:
		result.Status = domain.RunMemoryLimitExceeded
	case sv.elapsed > timeLimit:
		result.Status = domain.RunTimeLimitExceeded
	default:
		result.Status, result.ExitCode = classifyExit(sv.waitErr, cmd)
		if result.Status == domain.RunRuntimeError && result.Stderr == "" {
			result.Stderr = exitDescription(cmd, sv.waitErr)
		}
	}
	if sv.exited && result.Status != domain.RunOK && result.ExitCode == -1 && cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	e.logger.Debug("Sandbox run completed",
		zap.Int("pid", pid),
		zap.String("status", string(result.Status)),
		zap.Int64("elapsed_ms", result.ElapsedMs),
		zap.Int64("peak_memory_bytes", result.PeakMemoryBytes),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("stdout_truncated", result.StdoutTruncated),
	)
	return result, nil
}

// supervision is the state of one supervisory loop.
type supervision struct {
	pid         int
	start       time.Time
	timeLimit   time.Duration
	memoryLimit int64

	peak      int64
	elapsed   time.Duration
	status    domain.RunStatus
	exited    bool
	cancelled bool
	waitErr   error
}

// supervise blocks until the child exits, breaches a limit, or ctx is done.
// The wait is multiplexed over the exit channel, a deadline timer and a
// sampling ticker.
func (e *SandboxExecutor) supervise(ctx context.Context, sv *supervision, done <-chan error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(sv.timeLimit)
	defer deadline.Stop()

	for {
		select {
		case err := <-done:
			sv.elapsed = time.Since(sv.start)
			sv.exited = true
			sv.waitErr = err
			return
		case <-ticker.C:
			if rss := e.sampler.Sample(sv.pid); rss > sv.peak {
				sv.peak = rss
			}
			if sv.peak > sv.memoryLimit {
				sv.elapsed = time.Since(sv.start)
				sv.status = domain.RunMemoryLimitExceeded
				return
			}
			if time.Since(sv.start) > sv.timeLimit {
				sv.elapsed = time.Since(sv.start)
				sv.status = domain.RunTimeLimitExceeded
				return
			}
		case <-deadline.C:
			sv.elapsed = time.Since(sv.start)
			sv.status = domain.RunTimeLimitExceeded
			return
		case <-ctx.Done():
			sv.elapsed = time.Since(sv.start)
			sv.cancelled = true
			return
		}
	}
}

func killGroup(cmd *exec.Cmd, pid int) {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

// processRusage returns the kernel's peak RSS of the reaped child in bytes.
func processRusage(cmd *exec.Cmd) (int64, bool) {
	if cmd.ProcessState == nil {
		return 0, false
	}
	ru, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || ru == nil {
		return 0, false
	}
	// Linux reports ru_maxrss in kilobytes.
	return int64(ru.Maxrss) * 1024, true
}

func classifyExit(waitErr error, cmd *exec.Cmd) (domain.RunStatus, int) {
	if waitErr == nil {
		return domain.RunOK, 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return domain.RunRuntimeError, exitErr.ExitCode()
	}
	// The process exited but Wait reported a pipe error.
	if cmd.ProcessState != nil && cmd.ProcessState.Success() {
		return domain.RunOK, 0
	}
	return domain.RunRuntimeError, -1
}

func exitDescription(cmd *exec.Cmd, waitErr error) string {
	if cmd.ProcessState != nil {
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return "terminated by signal: " + ws.Signal().String()
		}
		return fmt.Sprintf("exited with code %d", cmd.ProcessState.ExitCode())
	}
	if waitErr != nil {
		return waitErr.Error()
	}
	return "process failed"
}

func spawnFailure(err error) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		Status:   domain.RunRuntimeError,
		Stderr:   "failed to start program: " + err.Error(),
		ExitCode: -1,
	}
}
