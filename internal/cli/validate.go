package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/polyref/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid" yaml:"valid"`
	EntityTypes int                        `json:"entity_types" yaml:"entity_types"`
	Fields      int                        `json:"fields" yaml:"fields"`
	Errors      []compiler.ValidationError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [registry-dir]",
		Short: "Validate registry definitions",
		Long: `Validate the CUE entity type definitions of a registry directory
without touching a database.

Checks CUE syntax, definition shapes, identifier rules, cardinalities,
table name lengths and that field settings only name defined entity
types and bundles. Defaults to the registry directory from the config.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if dir == "" {
		cfg, err := opts.config(f.GetErrWriter())
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, err)
		}
		dir = cfg.Registry
	}

	loadResult, loadErrors := LoadRegistry(dir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(f, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(f, ErrCodeGeneric, loadErrors[0].Error())
	}

	f.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	var errs []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			errs = append(errs, compiler.ValidationError{
				Field:   positionOf(loadErr),
				Message: loadErr.Message,
				Code:    loadErr.Code,
			})
		}
	}
	errs = append(errs, compiler.Validate(loadResult.Types, loadResult.Fields)...)

	result := ValidationResult{
		Valid:       len(errs) == 0,
		EntityTypes: len(loadResult.Types),
		Fields:      len(loadResult.Fields),
		Errors:      errs,
	}
	if len(errs) > 0 {
		return outputValidationErrors(f, result)
	}

	if f.Structured() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Registry valid (%d entity type(s), %d field(s))\n", result.EntityTypes, result.Fields)
	return nil
}

// positionOf renders a load error position as file:line, or "load".
func positionOf(e *LoadError) string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d", e.Pos.Filename(), e.Pos.Line())
	}
	return "load"
}

// outputValidateError outputs a single command-level error.
func outputValidateError(f *OutputFormatter, code, message string) error {
	_ = f.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs definition errors.
func outputValidationErrors(f *OutputFormatter, result ValidationResult) error {
	msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
	if f.Structured() {
		if err := f.Failure(result.Errors[0].Code, result.Errors[0].Message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, err := range result.Errors {
		fmt.Fprintf(f.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, msg)
}
