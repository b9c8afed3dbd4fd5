package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/banish/internal/script"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	EnvFile string
	Vars    []string
}

// EvalResult is the JSON payload of the eval command.
type EvalResult struct {
	Value  any            `json:"value"`
	Env    map[string]any `json:"env"`
	Output string         `json:"output,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <code>",
		Short: "Evaluate host code against an environment",
		Long: `Evaluate a host-language snippet against an initial environment.

Useful for checking a rule condition or statement before putting it in a
program. The snippet sees the same globals and print() builtin a run
does. The completion value and the resulting globals are printed.

Examples:
  banish eval 'ticks < 3' --var ticks=2
  banish eval 'loop_count += 1; loop_count' --env env.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EnvFile, "env", "", "initial environment file (.yaml, .json, .cue)")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "set a global (name=value, repeatable)")

	return cmd
}

func runEval(opts *EvalOptions, code string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := loadRunEnv(opts.EnvFile, opts.Vars)
	if err != nil {
		errCode, message := staticErrorCode(err)
		return outputCommandError(formatter, errCode, message)
	}

	var output bytes.Buffer
	var out io.Writer = formatter.Writer
	if formatter.Format == "json" {
		out = &output
	}

	host, err := script.New(script.WithGlobals(env), script.WithOutput(out), script.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose)))
	if err != nil {
		return outputCommandError(formatter, ErrCodeEnvFormat, fmt.Sprintf("initializing environment: %v", err))
	}

	value, err := host.Eval(commandContext(cmd), code)
	if err != nil {
		_ = formatter.Error("EVAL_FAILED", err.Error(), nil)
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(EvalResult{Value: value, Env: host.Snapshot(), Output: output.String()})
	}
	fmt.Fprintln(formatter.Writer, formatJSON(value))
	return nil
}
