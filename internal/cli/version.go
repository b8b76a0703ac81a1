package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// VersionInfo is the structured output of the version command.
type VersionInfo struct {
	Version string `json:"version" yaml:"version"`
	Go      string `json:"go" yaml:"go"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			info := VersionInfo{Version: Version, Go: runtime.Version()}
			if f.Structured() {
				return f.Success(info)
			}
			fmt.Fprintf(f.Writer, "polyref %s (%s)\n", info.Version, info.Go)
			return nil
		},
	}
}
