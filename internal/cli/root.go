package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/polyref/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "text" | "json" | "yaml"

	// Config is loaded on first use unless set beforehand (tests).
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the polyref CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "polyref",
		Short: "polyref - polymorphic entity references",
		Long: `Storage and query tooling for reference fields that can point at
entities of any type.

Maintains integer shadow columns and their triggers, prints join SQL for
reference relationships and checks stored references against their field
settings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./polyref.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	// Add subcommands
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// config loads the configuration and installs the slog default logger.
func (o *RootOptions) config(errOut io.Writer) (*config.Config, error) {
	if o.Config == nil {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		o.Config = cfg
	}
	if err := o.Config.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(errOut, o.Config, o.Verbose))
	return o.Config, nil
}

// newLogger returns a text or JSON slog logger on w. --verbose forces debug.
func newLogger(w io.Writer, cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
