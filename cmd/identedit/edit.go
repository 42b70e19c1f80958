package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/engine"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Dry-run compose a changeset from an EditRequest read on stdin",
	RunE:  runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)
}

// editRequestWire mirrors edit's accepted request shape: exactly one of
// single-file or batch form is populated.
type editRequestWire struct {
	Command     string                   `json:"command"`
	File        string                   `json:"file,omitempty"`
	HandleTable map[string]schema.Target `json:"handle_table,omitempty"`
	Operations  []schema.Operation       `json:"operations,omitempty"`
	Files       []fileEditWire           `json:"files,omitempty"`
}

type fileEditWire struct {
	File        string                   `json:"file"`
	HandleTable map[string]schema.Target `json:"handle_table,omitempty"`
	Operations  []schema.Operation       `json:"operations"`
}

func runEdit(cmd *cobra.Command, args []string) error {
	req, err := readEditRequest(os.Stdin)
	if err != nil {
		return reportError(err)
	}

	cs, err := newEngine().Edit(*req)
	if err != nil {
		return reportError(err)
	}
	return writeJSON(cs)
}

func readEditRequest(r io.Reader) (*engine.EditRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ierrors.Wrap(ierrors.InvalidRequest, "reading edit request from stdin", err)
	}
	var wire editRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, ierrors.Wrap(ierrors.InvalidRequest, "parsing edit request JSON", err)
	}

	req := &engine.EditRequest{}
	switch {
	case wire.File != "":
		req.Files = append(req.Files, engine.FileEditRequest{
			File: wire.File, HandleTable: wire.HandleTable, Operations: wire.Operations,
		})
	case len(wire.Files) > 0:
		for _, f := range wire.Files {
			req.Files = append(req.Files, engine.FileEditRequest{
				File: f.File, HandleTable: f.HandleTable, Operations: f.Operations,
			})
		}
	default:
		return nil, ierrors.New(ierrors.InvalidRequest, "edit request must set either \"file\" or \"files\"")
	}
	return req, nil
}
