package main

import (
	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/version"
)

var (
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "identedit",
	Short: "identedit - structural editing engine for autonomous agents",
	Long: `identedit mediates structural edits between autonomous agents and source
files via content-addressed handles, precondition hashes, and atomic
multi-file transactions.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("identedit version {{.Version}}\n")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "emit diagnostic logging to stderr")
}

// exitCodeFor maps a command's returned error to its process exit code,
// falling back to 1 for anything not carrying a structured kind.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := ierrors.As(err); ok {
		return ierrors.ExitCode(e.Kind)
	}
	return 1
}
