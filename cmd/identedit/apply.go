package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
	"github.com/identedit/identedit/internal/txn"
)

var injectFailureAfterWrites int

var applyCmd = &cobra.Command{
	Use:   "apply [changeset-file]",
	Short: "Commit a MultiFileChangeset to disk as a single all-or-nothing transaction",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().IntVar(&injectFailureAfterWrites, "inject-failure-after-writes", 0,
		"force a synthetic failure after N files are renamed into place (requires IDENTEDIT_EXPERIMENTAL)")
	rootCmd.AddCommand(applyCmd)
}

// applyRequestWire matches apply's accepted input shapes: either the bare
// changeset JSON, or {"command":"apply","changeset":{...}}.
type applyRequestWire struct {
	Command   string                      `json:"command"`
	Changeset *schema.MultiFileChangeset `json:"changeset"`
}

func runApply(cmd *cobra.Command, args []string) error {
	if injectFailureAfterWrites > 0 && os.Getenv("IDENTEDIT_EXPERIMENTAL") == "" {
		return reportError(ierrors.New(ierrors.InvalidRequest,
			"--inject-failure-after-writes requires IDENTEDIT_EXPERIMENTAL to be set"))
	}

	cs, err := readChangeset(args)
	if err != nil {
		return reportError(err)
	}

	result, err := newEngine().Apply(cs, txn.Options{InjectFailureAfterWrites: injectFailureAfterWrites})
	if err != nil {
		return reportError(err)
	}
	return writeJSON(result)
}

func readChangeset(args []string) (*schema.MultiFileChangeset, error) {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return nil, ierrors.Wrap(ierrors.TargetMissing, "reading changeset file "+args[0], err).WithFile(args[0])
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, ierrors.Wrap(ierrors.InvalidRequest, "reading changeset from stdin", err)
		}
	}

	var wire applyRequestWire
	if err := json.Unmarshal(data, &wire); err == nil && wire.Changeset != nil {
		return wire.Changeset, nil
	}

	var cs schema.MultiFileChangeset
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, ierrors.Wrap(ierrors.InvalidRequest, "parsing changeset JSON", err)
	}
	return &cs, nil
}
