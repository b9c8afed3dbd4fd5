package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	State      string   // optional - filter timeline to one state
	Kinds      []string // optional - filter timeline to event kinds
	Incomplete bool     // list only runs whose trace never closed
	Program    string   // list only runs of this program hash
}

// RunSummary is one line of the run listing.
type RunSummary struct {
	ID         string       `json:"id"`
	File       string       `json:"file,omitempty"`
	Status     ir.RunStatus `json:"status"`
	FinalState string       `json:"final_state,omitempty"`
	Passes     int          `json:"passes"`
	ReplayOf   string       `json:"replay_of,omitempty"`

	// LastSeq is how far an incomplete trace got before it stopped.
	LastSeq int64 `json:"last_seq,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID       string         `json:"run_id"`
	File        string         `json:"file,omitempty"`
	ProgramHash string         `json:"program_hash"`
	Env         map[string]any `json:"env"`
	Status      ir.RunStatus   `json:"status"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	ReplayOf    string         `json:"replay_of,omitempty"`
	Timeline    []ir.Event     `json:"timeline"`
	Stats       TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int               `json:"total_events"`
	Passes      int               `json:"passes"`
	Transitions int               `json:"transitions"`
	Entries     map[string]int    `json:"entries"`
	Rules       []store.RuleStats `json:"rules"`
	IsComplete  bool              `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show a recorded run",
		Long: `Show the recorded trace of a run, or list recorded runs.

With a run ID the output includes:
- Timeline: events in sequence order, narrowed by --state and --kind
- Stats: state entries, rule firings and transitions for the whole run

The filters apply to the timeline only. A --state filter keeps events in
that state and transitions into it.

Without a run ID every recorded run is listed. --incomplete lists only
runs whose trace never reached a terminal event, with the last recorded
seq. --program lists only runs of one program hash.

Examples:
  banish trace --db runs.db
  banish trace --db runs.db --incomplete
  banish trace --db runs.db --program 3f9a1c...
  banish trace --db runs.db 01928c7e-...
  banish trace --db runs.db 01928c7e-... --state red --format json
  banish trace --db runs.db 01928c7e-... --kind transitioned --kind returned`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.State, "state", "", "filter timeline to one state")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "filter timeline to event kinds (repeatable)")
	cmd.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "list only incomplete runs")
	cmd.Flags().StringVar(&opts.Program, "program", "", "list only runs of this program hash")
	cmd.MarkFlagsMutuallyExclusive("incomplete", "program")

	return cmd
}

// openStore opens an existing run database. A missing file is an error
// rather than a fresh empty database.
func openStore(formatter *OutputFormatter, path string) (*store.Store, error) {
	if !fileExists(path) {
		return nil, outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err))
	}
	return st, nil
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var runs []store.Run
	switch {
	case opts.Incomplete:
		runs, err = st.FindIncompleteRuns(ctx)
	case opts.Program != "":
		runs, err = st.ListRunsForProgram(ctx, opts.Program)
	default:
		runs, err = st.ListRuns(ctx)
	}
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to list runs: %v", err))
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summary := RunSummary{
			ID:         r.ID,
			File:       r.File,
			Status:     r.Status,
			FinalState: r.FinalState,
			Passes:     r.Passes,
			ReplayOf:   r.ReplayOf,
		}
		if r.Status == ir.RunRunning {
			if summary.LastSeq, err = st.GetLastSeq(ctx, r.ID); err != nil {
				return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to read run %s: %v", r.ID, err))
			}
		}
		summaries = append(summaries, summary)
	}

	if opts.Format == "json" {
		return formatter.Success(summaries)
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	fmt.Fprintf(w, "%d run(s)\n\n", len(summaries))
	for _, r := range summaries {
		line := fmt.Sprintf("  %s  %-9s %s", r.ID, r.Status, r.File)
		if r.FinalState != "" {
			line += " @" + r.FinalState
		}
		if r.ReplayOf != "" {
			line += " (replay of " + truncateID(r.ReplayOf) + ")"
		}
		if r.Status == ir.RunRunning {
			line += fmt.Sprintf(" (stopped after seq %d)", r.LastSeq)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	filter, err := timelineFilter(runID, opts)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	// Get run state and events
	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID))
		}
		return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to get run state: %v", err))
	}
	stats, err := st.ReadStats(ctx, runID)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to read stats: %v", err))
	}

	timeline := state.Events
	if filter.State != "" || len(filter.Kinds) > 0 {
		timeline, err = st.QueryEvents(ctx, filter)
		if err != nil {
			return outputCommandError(formatter, ErrCodeStore, fmt.Sprintf("failed to query events: %v", err))
		}
	}

	result := TraceResult{
		RunID:       runID,
		File:        state.Run.File,
		ProgramHash: state.Run.ProgramHash,
		Env:         state.Run.Env,
		Status:      state.Run.Status,
		Result:      state.Run.Result,
		Error:       state.Run.Error,
		ReplayOf:    state.Run.ReplayOf,
		Timeline:    timeline,
		Stats: TraceStats{
			TotalEvents: stats.Events,
			Passes:      state.Run.Passes,
			Transitions: stats.Transitions,
			Entries:     stats.Entries,
			Rules:       stats.Rules,
			IsComplete:  state.Complete,
		},
	}

	// Output results
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

// timelineFilter builds the event filter for the trace flags. A
// transition belongs to both its source and its target state.
func timelineFilter(runID string, opts *TraceOptions) (store.EventFilter, error) {
	filter := store.EventFilter{RunID: runID, State: strings.TrimPrefix(opts.State, "@")}
	for _, k := range opts.Kinds {
		kind := ir.EventKind(k)
		if !kind.Known() {
			return filter, fmt.Errorf("unknown event kind %q", k)
		}
		filter.Kinds = append(filter.Kinds, kind)
	}
	return filter, nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	if result.File != "" {
		fmt.Fprintf(w, "Program: %s (%s)\n", result.File, truncateID(result.ProgramHash))
	}
	fmt.Fprintf(w, "Status: %s, %s\n", result.Status, completeStatus(result.Stats.IsComplete))
	if result.Result != "" {
		fmt.Fprintf(w, "Result: %s\n", result.Result)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
	if result.ReplayOf != "" {
		fmt.Fprintf(w, "Replay of: %s\n", result.ReplayOf)
	}
	if verbose {
		fmt.Fprintf(w, "Env: %s\n", formatArgs(result.Env))
	}
	fmt.Fprintln(w)

	// Timeline section
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, ev := range result.Timeline {
			fmt.Fprintf(w, "  [%d] %s\n", ev.Seq, formatTimelineEvent(ev))
		}
	}
	fmt.Fprintln(w)

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Passes:       %d\n", result.Stats.Passes)
	fmt.Fprintf(w, "  Transitions:  %d\n", result.Stats.Transitions)
	fmt.Fprintf(w, "  Entries:      %s\n", formatEntries(result.Stats.Entries))
	if len(result.Stats.Rules) > 0 {
		fmt.Fprintln(w, "  Rules:")
		for _, r := range result.Stats.Rules {
			fmt.Fprintf(w, "    @%s.%s: %d fired, %d else\n", r.State, r.Rule, r.Fired, r.Else)
		}
	}

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(ev ir.Event) string {
	switch ev.Kind {
	case ir.EventRunStarted:
		return "START"
	case ir.EventStateEntered:
		return fmt.Sprintf("ENTER @%s (%s)", ev.State, ev.Detail)
	case ir.EventRuleFired:
		return fmt.Sprintf("FIRE @%s.%s (pass %d)", ev.State, ev.Rule, ev.Pass)
	case ir.EventElseFired:
		return fmt.Sprintf("ELSE @%s.%s (pass %d)", ev.State, ev.Rule, ev.Pass)
	case ir.EventTransitioned:
		return fmt.Sprintf("JUMP @%s.%s => @%s (pass %d)", ev.State, ev.Rule, ev.Target, ev.Pass)
	case ir.EventSettled:
		return fmt.Sprintf("SETTLE @%s (pass %d)", ev.State, ev.Pass)
	case ir.EventReturned:
		if ev.Detail == "" {
			return fmt.Sprintf("RETURN @%s.%s", ev.State, ev.Rule)
		}
		return fmt.Sprintf("RETURN @%s.%s %s", ev.State, ev.Rule, ev.Detail)
	case ir.EventExhausted:
		return fmt.Sprintf("EXHAUST @%s", ev.State)
	case ir.EventFailed:
		if ev.Rule == "" {
			return fmt.Sprintf("FAIL @%s %s", ev.State, ev.Detail)
		}
		return fmt.Sprintf("FAIL @%s.%s %s", ev.State, ev.Rule, ev.Detail)
	default:
		return string(ev.Kind)
	}
}

// formatEntries formats state entry counts in state name order.
func formatEntries(entries map[string]int) string {
	if len(entries) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("@%s=%d", name, entries[name])
	}
	return strings.Join(parts, ", ")
}

// formatArgs formats a map of globals for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	parts := make([]string, 0, len(args))
	for _, k := range sortedKeys(args) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return fmt.Sprintf("%q", val)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "complete"
	}
	return "incomplete (trace never closed)"
}
