package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <changeset-file> <changeset-file> [more...]",
	Short: "Compose two or more previously produced changesets into one",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	var changesets []*schema.MultiFileChangeset
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return reportError(ierrors.Wrap(ierrors.TargetMissing, "reading "+path, err).WithFile(path))
		}
		var cs schema.MultiFileChangeset
		if err := json.Unmarshal(data, &cs); err != nil {
			return reportError(ierrors.Wrap(ierrors.InvalidRequest, "parsing "+path, err).WithFile(path))
		}
		changesets = append(changesets, &cs)
	}

	merged, err := newEngine().Merge(changesets)
	if err != nil {
		return reportError(err)
	}
	return writeJSON(merged)
}
