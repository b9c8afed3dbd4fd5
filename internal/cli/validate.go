package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/script"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // treat analysis warnings as errors
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.Warning         `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a program without running it",
		Long: `Check a banish program for static errors without running it.

Reports syntax errors, name and target errors, and host fragments that
fail to compile. Analysis warnings (unreachable states, transition
cycles, empty states, dead actions) are printed but only fail the
command with --strict.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on analysis warnings")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	result, err := ValidateFile(path)
	if err != nil {
		return reportProgramError(formatter, err)
	}
	formatter.VerboseLog("Checked %s: %d error(s), %d warning(s)", path, len(result.Errors), len(result.Warnings))

	if !result.Valid || (opts.Strict && len(result.Warnings) > 0) {
		return outputValidationErrors(formatter, result)
	}

	// Output success
	return outputValidateSuccess(formatter, result)
}

// ValidateFile checks the program at path. Static program errors are
// returned in the result; the error return is reserved for files that
// cannot be read.
func ValidateFile(path string) (ValidationResult, error) {
	prog, _, err := LoadProgram(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Code == ErrCodeSyntax {
			return ValidationResult{Errors: []compiler.ValidationError{{
				Field:   "syntax",
				Message: loadErr.Message,
				Code:    ErrCodeSyntax,
				Line:    loadErr.Line,
			}}}, nil
		}
		var verrs compiler.ValidationErrors
		if errors.As(err, &verrs) {
			return ValidationResult{Errors: verrs}, nil
		}
		return ValidationResult{}, err
	}

	if bindErr := checkBind(prog); bindErr != nil {
		return ValidationResult{Errors: []compiler.ValidationError{{
			Field:   fmt.Sprintf("@%s.%s", bindErr.State, bindErr.Rule),
			Message: bindErr.Err.Error(),
			Code:    ErrCodeBind,
			Line:    bindErr.Pos.Line,
		}}}, nil
	}

	return ValidationResult{Valid: true, Warnings: compiler.Analyze(prog)}, nil
}

// checkBind compiles every host fragment against a fresh environment.
func checkBind(prog *ir.Program) *engine.BindError {
	host, err := script.New()
	if err != nil {
		return &engine.BindError{Err: err}
	}
	if _, err := engine.New(prog, host); err != nil {
		var bindErr *engine.BindError
		if errors.As(err, &bindErr) {
			return bindErr
		}
		return &engine.BindError{Err: err}
	}
	return nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ Program valid")
	writeWarnings(formatter, result.Warnings)
	return nil
}

// outputValidationErrors outputs errors, or warnings under --strict.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	var code, message string
	if len(result.Errors) > 0 {
		code, message = result.Errors[0].Code, result.Errors[0].Message
	} else {
		code, message = result.Warnings[0].Code, result.Warnings[0].Message
	}
	count := len(result.Errors) + len(result.Warnings)

	if formatter.Format == "json" {
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: code, Message: message},
		}); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", count))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	writeWarnings(formatter, result.Warnings)

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", count))
}

func writeWarnings(formatter *OutputFormatter, warnings []compiler.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(formatter.Writer, "\nWarnings (%d):\n", len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  %s\n", w)
	}
}
