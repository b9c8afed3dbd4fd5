package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/script"
	"github.com/roach88/banish/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	EnvFile       string
	Vars          []string
	Database      string
	Timeout       time.Duration
	MaxPasses     int
	RequireReturn bool

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunReport is the JSON payload of the run command.
type RunReport struct {
	RunID       string         `json:"run_id"`
	Status      ir.RunStatus   `json:"status"`
	Returned    bool           `json:"returned"`
	Value       any            `json:"value,omitempty"`
	FinalState  string         `json:"final_state,omitempty"`
	Passes      int            `json:"passes"`
	Transitions int            `json:"transitions"`
	Env         map[string]any `json:"env"`
	Output      string         `json:"output,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a program",
		Long: `Execute a banish program once from its first state.

The initial environment comes from --env (YAML, JSON or CUE) and --var
overrides. print() output goes to stdout in text mode and into the
"output" field in JSON mode. With --db the run and its full trace are
recorded in a SQLite database for trace and replay.

Exit codes:
  0 - The run returned or fell off the last state
  1 - Invalid program or runtime failure
  2 - Command error (missing file, bad env, database error)

Examples:
  banish run light.banish --var ticks=0 --var loop_count=0
  banish run light.banish --env env.yaml --db runs.db
  banish run spin.banish --max-passes 100 --timeout 2s --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EnvFile, "env", "", "initial environment file (.yaml, .json, .cue)")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "set a global (name=value, repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "cancel the run after this long (0 = no limit)")
	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "fail after this many passes (0 = no limit)")
	cmd.Flags().BoolVar(&opts.RequireReturn, "require-return", false, "fail when the run falls off the last state")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	if opts.MaxPasses < 0 {
		return outputCommandError(formatter, ErrCodeGeneric, "--max-passes must not be negative")
	}

	prog, src, err := LoadProgram(path)
	if err != nil {
		return reportProgramError(formatter, err)
	}
	env, err := loadRunEnv(opts.EnvFile, opts.Vars)
	if err != nil {
		code, message := staticErrorCode(err)
		return outputCommandError(formatter, code, message)
	}
	logger.Debug("program loaded", "file", path, "states", len(prog.States), "globals", len(env))

	// print() output is part of the JSON payload in json mode
	var output bytes.Buffer
	var out io.Writer = formatter.Writer
	if formatter.Format == "json" {
		out = &output
	}

	host, err := script.New(script.WithGlobals(env), script.WithOutput(out), script.WithLogger(logger))
	if err != nil {
		return outputCommandError(formatter, ErrCodeEnvFormat, fmt.Sprintf("initializing environment: %v", err))
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	engOpts := []engine.EngineOption{
		engine.WithRunIDGenerator(runIDs),
		engine.WithLogger(logger),
		engine.WithMaxPasses(opts.MaxPasses),
	}
	if opts.RequireReturn {
		engOpts = append(engOpts, engine.WithRequireReturn())
	}

	// Open database (create if not exists)
	var rec *store.Recorder
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err))
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		tmpl, err := store.RunFor(prog, src, env)
		if err != nil {
			return outputCommandError(formatter, ErrCodeStore, err.Error())
		}
		tmpl.MaxPasses = opts.MaxPasses
		tmpl.RequireReturn = opts.RequireReturn
		rec = store.NewRecorder(st, tmpl)
		engOpts = append(engOpts, engine.WithObserver(rec))
	}

	eng, err := engine.New(prog, host, engOpts...)
	if err != nil {
		return reportProgramError(formatter, err)
	}

	ctx, cancel := runContext(cmd, opts.Timeout, logger)
	defer cancel()

	res, runErr := eng.Run(ctx)
	if rec != nil && rec.RunID() != "" {
		// Record with a fresh context so a canceled run is still closed out.
		if err := rec.Finish(context.Background(), res, runErr); err != nil {
			return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to record run: %v", err))
		}
		logger.Debug("run recorded", "run_id", rec.RunID(), "db", opts.Database)
	}

	report, err := newRunReport(res, runErr)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	report.Env = host.Snapshot()
	report.Output = output.String()

	if formatter.Format == "json" {
		return outputRunJSON(formatter, report)
	}
	return outputRunText(formatter, report)
}

// runContext derives the run context: canceled on SIGINT/SIGTERM and,
// when timeout is positive, after timeout.
func runContext(cmd *cobra.Command, timeout time.Duration, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		parentCancel := cancel
		cancel = func() {
			cancelTimeout()
			parentCancel()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, canceling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// newRunReport converts the return values of engine.Run.
func newRunReport(res *engine.Result, runErr error) (RunReport, error) {
	out, err := store.OutcomeOf(res, runErr)
	if err != nil {
		return RunReport{}, err
	}
	report := RunReport{
		Status:      out.Status,
		Returned:    out.Returned,
		FinalState:  out.FinalState,
		Passes:      out.Passes,
		Transitions: out.Transitions,
		ErrorCode:   out.ErrorCode,
		Error:       out.Error,
	}
	if res != nil {
		report.RunID = res.RunID
		report.Value = res.Value
	}
	var re *engine.RuntimeError
	if errors.As(runErr, &re) {
		report.RunID = re.RunID
	}
	return report, nil
}

func outputRunJSON(formatter *OutputFormatter, report RunReport) error {
	response := CLIResponse{Status: "ok", Data: report, RunID: report.RunID}
	if report.Status == ir.RunFailed {
		response.Status = "error"
		response.Error = &CLIError{Code: report.ErrorCode, Message: report.Error}
	}
	if err := formatter.Respond(response); err != nil {
		return err
	}
	if report.Status == ir.RunFailed {
		return NewExitError(ExitFailure, report.Error)
	}
	return nil
}

func outputRunText(formatter *OutputFormatter, report RunReport) error {
	w := formatter.Writer

	if report.Status == ir.RunFailed {
		fmt.Fprintf(w, "✗ Run failed in @%s\n", report.FinalState)
		fmt.Fprintf(w, "  %s\n", report.Error)
		formatter.VerboseLog("Run ID: %s", report.RunID)
		return NewExitError(ExitFailure, report.Error)
	}

	switch {
	case report.Returned && report.Value != nil:
		fmt.Fprintf(w, "✓ Returned from @%s: %s\n", report.FinalState, formatJSON(report.Value))
	case report.Returned:
		fmt.Fprintf(w, "✓ Returned from @%s\n", report.FinalState)
	default:
		fmt.Fprintf(w, "✓ Exhausted after @%s\n", report.FinalState)
	}
	fmt.Fprintf(w, "  Passes: %d, Transitions: %d\n", report.Passes, report.Transitions)
	if len(report.Env) > 0 {
		fmt.Fprintf(w, "  Env: %s\n", formatArgs(report.Env))
	}
	formatter.VerboseLog("Run ID: %s", report.RunID)
	return nil
}

// formatJSON renders a value compactly for text output.
func formatJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
