package judge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/analyzer"
	"github.com/midopa-dept/python-code-judge-sub000/internal/config"
	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/executor"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

// Build wires an Orchestrator with the real analyzer and sandbox executor.
func Build(cfg config.JudgeConfig, logger *zap.Logger) (*Orchestrator, error) {
	// A policy file's max_bytes wins over the configured size limit.
	policy := analyzer.DefaultPolicy()
	if cfg.MaxSourceBytes > 0 {
		policy.MaxBytes = cfg.MaxSourceBytes
	}
	if cfg.PolicyFile != "" {
		p, err := analyzer.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		if p.MaxBytes == analyzer.DefaultMaxBytes {
			p.MaxBytes = policy.MaxBytes
		}
		policy = p
	}

	an, err := analyzer.New(analyzer.Config{
		Policy:                policy,
		InterpreterCandidates: cfg.AnalyzerCandidates,
		Timeout:               cfg.AnalyzerTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	ex, err := executor.NewSandboxExecutor(executor.Config{
		Interpreter:    cfg.Interpreter,
		WorkRoot:       cfg.WorkRoot,
		PollInterval:   cfg.PollInterval,
		MaxStdoutBytes: cfg.MaxStdoutBytes,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	o := NewOrchestrator(an, ex, logger)
	o.policy = policy.Info(cfg.Limits())
	return o, nil
}

// Policy describes the analyzer policy and default limits Build applied.
func (o *Orchestrator) Policy() domain.PolicyInfo {
	return o.policy
}

// Analyzer returns the static analyzer the orchestrator runs first.
func (o *Orchestrator) Analyzer() repository.Analyzer {
	return o.analyzer
}
