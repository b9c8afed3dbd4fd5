package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/script"
	"github.com/roach88/banish/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Record   bool          // store each replay as a new run
	Timeout  time.Duration // per-run limit
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID          string `json:"run_id"`
	File           string `json:"file,omitempty"`
	Events         int    `json:"events"`
	ReplayedEvents int    `json:"replayed_events"`
	Deterministic  bool   `json:"deterministic"`
	Skipped        string `json:"skipped,omitempty"`    // reason the run was not replayed
	Divergence     string `json:"divergence,omitempty"` // first differing step
	ReplayID       string `json:"replay_id,omitempty"`  // recorded replay, with --record
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-execute recorded runs and verify determinism",
		Long: `Re-execute recorded runs and compare their traces step by step.

Each run is recompiled from its stored source, checked against its
program hash and executed again with its stored initial environment and
limits. The new trace must match the recorded one event for event.
Without a run ID every recorded run (except replays) is checked. Runs
whose trace never closed are skipped.

Exit codes:
  0 - All replayed runs are deterministic
  1 - A replay diverged from its recording
  2 - Command error (database not found, unknown run, etc.)

Examples:
  banish replay --db runs.db
  banish replay --db runs.db 01928c7e-... --record
  banish replay --db runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReplay(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record each replay as a new run")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "cancel a replay after this long")

	return cmd
}

func runReplay(opts *ReplayOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	// Get runs to process
	var runs []store.Run
	if runID != "" {
		run, err := st.ReadRun(ctx, runID)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID))
			}
			return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to read run: %v", err))
		}
		runs = []store.Run{run}
	} else {
		all, err := st.ListRuns(ctx)
		if err != nil {
			return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to list runs: %v", err))
		}
		for _, r := range all {
			if r.ReplayOf == "" {
				runs = append(runs, r)
			}
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllDeterministic: true,
	}

	for _, run := range runs {
		runResult, err := replayAndVerifyRun(ctx, st, run, opts, logger)
		if err != nil {
			return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to replay run %s: %v", run.ID, err))
		}

		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic && runResult.Skipped == "" {
			result.AllDeterministic = false
		}
	}

	// Output results
	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result, opts.Verbose)
}

// replayAndVerifyRun re-executes one recorded run and compares traces.
// The error return is reserved for store failures; a run that cannot be
// rebuilt is reported as non-deterministic.
func replayAndVerifyRun(ctx context.Context, st *store.Store, run store.Run, opts *ReplayOptions, logger *slog.Logger) (ReplayRunResult, error) {
	result := ReplayRunResult{RunID: run.ID, File: run.File}

	state, err := st.GetRunState(ctx, run.ID)
	if err != nil {
		return result, err
	}
	result.Events = len(state.Events)
	if !state.Complete {
		result.Skipped = "recorded trace is incomplete"
		return result, nil
	}
	if run.ErrorCode == string(engine.ErrCodeCanceled) {
		result.Skipped = "recorded run was canceled"
		return result, nil
	}

	diverged := func(format string, args ...any) (ReplayRunResult, error) {
		result.Divergence = fmt.Sprintf(format, args...)
		return result, nil
	}

	prog, err := compiler.Compile(run.File, run.Source)
	if err != nil {
		return diverged("stored source no longer compiles: %v", err)
	}
	hash, err := ir.ProgramHash(prog)
	if err != nil {
		return diverged("hashing program: %v", err)
	}
	if hash != run.ProgramHash {
		return diverged("program hash %s does not match recorded %s", truncateID(hash), truncateID(run.ProgramHash))
	}

	host, err := script.New(script.WithGlobals(run.Env), script.WithOutput(io.Discard), script.WithLogger(logger))
	if err != nil {
		return diverged("restoring environment: %v", err)
	}

	collector := engine.NewCollector()
	engOpts := []engine.EngineOption{
		engine.WithObserver(collector),
		engine.WithMaxPasses(run.MaxPasses),
		engine.WithLogger(logger),
	}
	if run.RequireReturn {
		engOpts = append(engOpts, engine.WithRequireReturn())
	}

	var rec *store.Recorder
	if opts.Record {
		tmpl, err := store.RunFor(prog, run.Source, run.Env)
		if err != nil {
			return result, err
		}
		tmpl.MaxPasses = run.MaxPasses
		tmpl.RequireReturn = run.RequireReturn
		tmpl.ReplayOf = run.ID
		rec = store.NewRecorder(st, tmpl)
		engOpts = append(engOpts, engine.WithObserver(rec))
	}

	eng, err := engine.New(prog, host, engOpts...)
	if err != nil {
		return diverged("binding program: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	res, runErr := eng.Run(runCtx)

	if rec != nil && rec.RunID() != "" {
		if err := rec.Finish(ctx, res, runErr); err != nil {
			return result, err
		}
		result.ReplayID = rec.RunID()
	}

	replayed := collector.Events()
	result.ReplayedEvents = len(replayed)
	logger.Debug("run replayed", "run_id", run.ID, "recorded", result.Events, "replayed", result.ReplayedEvents)

	if div := engine.CompareTraces(state.Events, replayed); div != nil {
		return diverged("%s", div.Error())
	}

	out, err := store.OutcomeOf(res, runErr)
	if err != nil {
		return result, err
	}
	if out.Status != run.Status || out.Result != run.Result {
		return diverged("outcome %s %s does not match recorded %s %s", out.Status, out.Result, run.Status, run.Result)
	}

	result.Deterministic = true
	return result, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	if err := formatter.Respond(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult, verbose bool) error {
	w := formatter.Writer

	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		switch {
		case run.Skipped != "":
			status = "-"
		case !run.Deterministic:
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)
		if verbose && run.File != "" {
			fmt.Fprintf(w, "  File: %s\n", run.File)
		}

		switch {
		case run.Skipped != "":
			fmt.Fprintf(w, "  Skipped: %s\n", run.Skipped)
		case run.Divergence != "":
			fmt.Fprintf(w, "  Events: %d recorded, %d replayed\n", run.Events, run.ReplayedEvents)
			fmt.Fprintf(w, "  Warning: %s\n", run.Divergence)
		default:
			fmt.Fprintf(w, "  Events: %d\n", run.Events)
		}
		if run.ReplayID != "" {
			fmt.Fprintf(w, "  Recorded as: %s\n", run.ReplayID)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
