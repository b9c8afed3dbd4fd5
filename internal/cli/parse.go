package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/ir"
)

// ParseOptions holds flags for the parse command.
type ParseOptions struct {
	*RootOptions
	Output string // output file path
}

// ParseResult is the JSON payload of the parse command.
type ParseResult struct {
	ProgramHash string         `json:"program_hash"`
	Program     map[string]any `json:"program"`
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "parse <file>",
		Aliases: []string{"compile"},
		Short:   "Parse and link a program",
		Long: `Parse a banish program, validate it and print its structure.

With --format json the full program tree is printed, including source
positions. With -o the tree is written as canonical JSON, the same form
the program hash is computed from.

Examples:
  banish parse light.banish
  banish parse light.banish --format json
  banish parse light.banish -o light.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runParse(opts *ParseOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	prog, _, err := LoadProgram(path)
	if err != nil {
		return reportProgramError(formatter, err)
	}
	formatter.VerboseLog("Parsed %s: %d state(s)", path, len(prog.States))

	tree, err := ir.Describe(prog)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("describing program: %v", err))
	}
	hash, err := ir.ProgramHash(prog)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("hashing program: %v", err))
	}

	// Write to file if --output specified
	if opts.Output != "" {
		data, err := ir.MarshalCanonical(tree)
		if err != nil {
			return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("marshaling program: %v", err))
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(ParseResult{ProgramHash: hash, Program: tree})
	}

	w := formatter.Writer
	rules := 0
	for _, st := range prog.States {
		rules += len(st.Rules)
	}
	fmt.Fprintf(w, "✓ Parsed %d state(s), %d rule(s)\n\n", len(prog.States), rules)

	fmt.Fprintln(w, "States:")
	for _, st := range prog.States {
		fmt.Fprintf(w, "  @%s\n", st.Name)
		for _, r := range st.Rules {
			fmt.Fprintf(w, "    %s\n", describeRule(r))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Program hash: %s\n", hash)

	if opts.Output != "" {
		fmt.Fprintf(w, "Wrote canonical program to %s\n", opts.Output)
	}
	return nil
}

// describeRule renders a one-line rule summary: its condition and the
// control actions it can take.
func describeRule(r *ir.Rule) string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Conditionless() {
		b.WriteString(" (once)")
	} else {
		fmt.Fprintf(&b, " ? %s", r.Condition.Text)
	}

	var exits []string
	ir.Walk(r.Body, func(a ir.Action) bool {
		exits = appendExit(exits, a)
		return true
	})
	ir.Walk(r.Else, func(a ir.Action) bool {
		exits = appendExit(exits, a)
		return true
	})
	if len(exits) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(exits, ", "))
	}
	if r.HasElse() {
		b.WriteString(" +else")
	}
	return b.String()
}

func appendExit(exits []string, a ir.Action) []string {
	switch act := a.(type) {
	case *ir.Transition:
		return append(exits, "=> @"+act.Target)
	case *ir.Return:
		return append(exits, "return")
	}
	return exits
}

// reportProgramError outputs a load, syntax, validation or bind error.
// A missing file is a command error; a broken program is a failure.
func reportProgramError(formatter *OutputFormatter, err error) error {
	code, message := staticErrorCode(err)

	exitCode := ExitFailure
	var loadErr *LoadError
	if errors.As(err, &loadErr) && loadErr.Code == ErrCodeNotFound {
		exitCode = ExitCommandError
	}

	var details any
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		details = []compiler.ValidationError(verrs)
	}

	_ = formatter.Error(code, message, details)
	return WrapExitError(exitCode, code, err)
}

// outputCommandError outputs an error that is not the program's fault.
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
