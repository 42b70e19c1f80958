package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and manage identedit configuration stored in .identedit/config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration for the current directory",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration key and persist it",
	Long: `Set one configuration key and persist it to .identedit/config.json.

Recognized keys: logging.format, logging.level, limits.maxFileBytes,
limits.autoRepairWindow.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	s, err := settings.Load(".")
	if err != nil {
		return reportError(ierrors.Wrap(ierrors.Internal, "loading configuration", err))
	}
	return writeJSON(s)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	s, err := settings.Load(".")
	if err != nil {
		return reportError(ierrors.Wrap(ierrors.Internal, "loading configuration", err))
	}

	switch key {
	case "logging.format":
		s.Logging.Format = value
	case "logging.level":
		s.Logging.Level = value
	case "limits.maxFileBytes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return reportError(ierrors.New(ierrors.InvalidRequest, "limits.maxFileBytes must be an integer"))
		}
		s.Limits.MaxFileBytes = n
	case "limits.autoRepairWindow":
		n, err := strconv.Atoi(value)
		if err != nil {
			return reportError(ierrors.New(ierrors.InvalidRequest, "limits.autoRepairWindow must be an integer"))
		}
		s.Limits.AutoRepairWindow = n
	default:
		return reportError(ierrors.New(ierrors.InvalidRequest, "unrecognized configuration key "+key))
	}

	if err := s.Save("."); err != nil {
		return reportError(ierrors.Wrap(ierrors.Internal, "saving configuration", err))
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}
