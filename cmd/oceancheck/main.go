package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/oceancheck/internal/config"
	"github.com/dshills/oceancheck/internal/exa"
	"github.com/dshills/oceancheck/internal/llm"
)

const (
	toolName = "oceancheck"
	version  = "0.1.0"
)

// Process exit codes.
const (
	exitCodeError     = 1
	exitCodeBadInput  = 3
	exitCodeAPIError  = 4
	exitCodeBadOutput = 5
)

// exitError carries a process exit code. A nil err exits quietly.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// modelError maps an llm failure to its exit code.
func modelError(err error) error {
	if errors.Is(err, llm.ErrInvalidModelOutput) {
		return exitWith(exitCodeBadOutput, err)
	}
	return exitWith(exitCodeAPIError, err)
}

// app is the state shared by every subcommand.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	out    io.Writer
	errOut io.Writer
	format string
	now    func() time.Time
}

// flags holds raw flag values; only flags the user set override the config.
type flags struct {
	verbose     bool
	envFile     string
	provider    string
	model       string
	outDir      string
	format      string
	temperature float64
	maxTokens   int
	maxPosts    int
	concurrency int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(stderr, msg)
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCodeError
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{out: stdout, errOut: stderr, log: zap.NewNop(), now: time.Now}
	var f flags

	root := &cobra.Command{
		Use:           toolName,
		Short:         "OCEAN personality analysis of X profiles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(f.envFile); err != nil {
				return exitWith(exitCodeBadInput, err)
			}
			cfg := applyFlags(cmd, config.FromEnv(config.Default()), f)
			if err := cfg.Validate(); err != nil {
				return exitWith(exitCodeBadInput, err)
			}
			if f.format != "md" && f.format != "json" {
				return exitWith(exitCodeBadInput, fmt.Errorf("--format must be md or json, got %q", f.format))
			}
			a.cfg = cfg
			a.format = f.format

			zcfg := zap.NewProductionConfig()
			if f.verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.log = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	pf.StringVar(&f.provider, "provider", "", "LLM provider: anthropic, openai, google or xai")
	pf.StringVar(&f.model, "model", "", "model name (provider default when empty)")
	pf.StringVar(&f.outDir, "out-dir", "", "directory for saved reports")
	pf.StringVar(&f.format, "format", "md", "output format: md or json")
	pf.Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	pf.IntVar(&f.maxTokens, "max-tokens", 0, "maximum tokens in the model response")
	pf.IntVar(&f.maxPosts, "max-posts", 0, "maximum posts sent to the model")
	pf.IntVar(&f.concurrency, "concurrency", 0, "users analysed in parallel")

	root.AddCommand(
		newParseCmd(a),
		newAnalyzeCmd(a),
		newCompareCmd(a),
		newListCmd(a),
	)
	return root
}

// applyFlags overlays the flags the user set onto cfg.
func applyFlags(cmd *cobra.Command, cfg config.Config, f flags) config.Config {
	changed := cmd.Flags().Changed
	if changed("provider") {
		cfg.Provider = f.provider
	}
	if changed("model") {
		cfg.Model = f.model
	}
	if changed("out-dir") {
		cfg.OutDir = f.outDir
	}
	if changed("temperature") {
		cfg.Temperature = f.temperature
	}
	if changed("max-tokens") {
		cfg.MaxTokens = f.maxTokens
	}
	if changed("max-posts") {
		cfg.MaxPosts = f.maxPosts
	}
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	return cfg
}

// llmOptions builds the options for one model call.
func (a *app) llmOptions(log *zap.Logger) llm.Options {
	return llm.Options{
		Provider:    a.cfg.Provider,
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		MaxPosts:    a.cfg.MaxPosts,
		Logger:      log,
	}
}

// modelName is the model recorded in report metadata.
func (a *app) modelName() string {
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return llm.DefaultModel(a.cfg.Provider)
}

func (a *app) exaClient() (*exa.Client, error) {
	if err := a.cfg.RequireExa(); err != nil {
		return nil, exitWith(exitCodeBadInput, err)
	}
	c, err := exa.New(a.cfg.ExaAPIKey,
		exa.WithBaseURL(a.cfg.ExaBaseURL),
		exa.WithCacheTTL(a.cfg.CacheTTL),
		exa.WithLogger(a.log))
	if err != nil {
		return nil, exitWith(exitCodeBadInput, err)
	}
	return c, nil
}
