package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/config"
	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/judge"
	"github.com/midopa-dept/python-code-judge-sub000/internal/suite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "judge",
		Usage: "judge Python submissions locally",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log judge internals to stderr"},
			&cli.StringFlag{Name: "policy", Usage: "TOML security policy file", Sources: cli.EnvVars("JUDGE_POLICY_FILE")},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "judge a source file against a TOML test suite",
				ArgsUsage: "<main.py>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "suite", Aliases: []string{"s"}, Required: true, Usage: "suite file (.toml or .toml.zst)"},
					&cli.FloatFlag{Name: "time-limit", Usage: "default time limit in seconds, overrides the suite"},
					&cli.IntFlag{Name: "memory-limit", Usage: "default memory limit in MB, overrides the suite"},
					&cli.BoolFlag{Name: "all", Usage: "run every case instead of stopping at the first failure"},
					&cli.BoolFlag{Name: "json", Usage: "print the verdict as JSON"},
				},
				Action: runAction,
			},
			{
				Name:      "analyze",
				Usage:     "run only the static safety check",
				ArgsUsage: "<main.py>",
				Action:    analyzeAction,
			},
			{
				Name:   "policy",
				Usage:  "print the security policy and default limits as JSON",
				Action: policyAction,
			},
		},
	}
}

func newLogger(cmd *cli.Command) (*zap.Logger, error) {
	if cmd.Bool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewNop(), nil
}

// buildJudge loads environment configuration and applies the CLI overrides.
func buildJudge(cmd *cli.Command, logger *zap.Logger) (*judge.Orchestrator, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if p := cmd.String("policy"); p != "" {
		cfg.Judge.PolicyFile = p
	}
	o, err := judge.Build(cfg.Judge, logger)
	if err != nil {
		return nil, nil, err
	}
	return o, cfg, nil
}

func readSource(cmd *cli.Command) (string, error) {
	path := cmd.Args().First()
	if path == "" {
		return "", errors.New("missing source file argument")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(data), nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	code, err := readSource(cmd)
	if err != nil {
		return err
	}
	s, err := suite.Load(cmd.String("suite"))
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	o, cfg, err := buildJudge(cmd, logger)
	if err != nil {
		return err
	}

	limits := s.Limits.Or(cfg.Judge.Limits())
	if v := cmd.Float("time-limit"); v > 0 {
		limits.DefaultTimeLimitSeconds = v
	}
	if v := cmd.Int("memory-limit"); v > 0 {
		limits.DefaultMemoryLimitMB = v
	}
	opts := s.Options(cfg.Judge.Options())
	if cmd.Bool("all") {
		opts.FailFast = false
	}

	verdict, err := o.Judge(ctx, code, s.TestCases, limits, opts)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if err := writeJSON(os.Stdout, verdict); err != nil {
			return err
		}
	} else {
		printVerdict(os.Stdout, verdict)
	}
	if !verdict.Status.IsAccepted() {
		return cli.Exit("", 2)
	}
	return nil
}

func analyzeAction(ctx context.Context, cmd *cli.Command) error {
	code, err := readSource(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	o, _, err := buildJudge(cmd, logger)
	if err != nil {
		return err
	}

	res, err := o.Analyzer().Analyze(ctx, code)
	if err != nil {
		return err
	}
	printAnalysis(os.Stdout, res)
	if res.Status != domain.AnalysisOK {
		return cli.Exit("", 2)
	}
	return nil
}

func policyAction(ctx context.Context, cmd *cli.Command) error {
	o, _, err := buildJudge(cmd, zap.NewNop())
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, o.Policy())
}
