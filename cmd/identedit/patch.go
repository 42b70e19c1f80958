package main

import (
	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
	"github.com/identedit/identedit/internal/txn"
)

var (
	patchOp          string
	patchIdentity    string
	patchNodeKind    string
	patchOldHash     string
	patchHandle      string
	patchLine        int
	patchLineHash    string
	patchEndLine     int
	patchEndHash     string
	patchAutoRepair  bool
	patchConfigPath  string
	patchFileHash    string
	patchNewText     string
	patchCreateMiss  bool
	patchInjectAfter int
)

var patchCmd = &cobra.Command{
	Use:   "patch <file>",
	Short: "Resolve, apply, and commit a single operation against one file in one step",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatch,
}

func init() {
	patchCmd.Flags().StringVar(&patchOp, "op", "", "operation kind, e.g. replace, delete, insert_before, insert_after, set_line, replace_range, insert_after_line, config_set, config_append, config_delete")
	patchCmd.Flags().StringVar(&patchIdentity, "identity", "", "node target: structural identity hash")
	patchCmd.Flags().StringVar(&patchNodeKind, "node-kind", "", "node target: grammar node kind; only nodes of this kind are searched for the identity")
	patchCmd.Flags().StringVar(&patchOldHash, "expected-old-hash", "", "node target: precondition hash over the node's current bytes")
	patchCmd.Flags().StringVar(&patchHandle, "handle", "", "handle_ref target: a ref name resolved via a previously issued handle table")
	patchCmd.Flags().IntVar(&patchLine, "line", 0, "line or line_range target: starting 1-based line number")
	patchCmd.Flags().StringVar(&patchLineHash, "line-hash", "", "line or line_range target: precondition hash of the starting line's content")
	patchCmd.Flags().IntVar(&patchEndLine, "end-line", 0, "line_range target: ending 1-based line number")
	patchCmd.Flags().StringVar(&patchEndHash, "end-line-hash", "", "line_range target: precondition hash of the ending line's content")
	patchCmd.Flags().BoolVar(&patchAutoRepair, "auto-repair", false, "search a small window of nearby lines when the hash at --line no longer matches")
	patchCmd.Flags().StringVar(&patchConfigPath, "config-path", "", "config_path target: dotted path into a JSON/YAML/TOML document")
	patchCmd.Flags().StringVar(&patchFileHash, "expected-file-hash", "", "config_path target: optional precondition hash over the whole file")
	patchCmd.Flags().StringVar(&patchNewText, "new-text", "", "replacement or inserted text, or the value for a config_set/config_append operation")
	patchCmd.Flags().BoolVar(&patchCreateMiss, "create-missing", false, "config_path target: create the path if it does not already exist")
	patchCmd.Flags().IntVar(&patchInjectAfter, "inject-failure-after-writes", 0, "force a synthetic failure after N files are renamed into place (requires IDENTEDIT_EXPERIMENTAL)")
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	op, err := buildPatchOperation()
	if err != nil {
		return reportError(err)
	}

	result, err := newEngine().Patch(file, nil, op, txn.Options{InjectFailureAfterWrites: patchInjectAfter})
	if err != nil {
		return reportError(err)
	}
	return writeJSON(result)
}

func buildPatchOperation() (schema.Operation, error) {
	if patchOp == "" {
		return schema.Operation{}, ierrors.New(ierrors.InvalidRequest, "--op is required")
	}

	var target schema.Target
	switch {
	case patchConfigPath != "":
		target = schema.Target{Kind: schema.TargetConfigPath, Path: patchConfigPath, ExpectedFileHash: patchFileHash}
	case patchHandle != "":
		target = schema.Target{Kind: schema.TargetHandleRef, Ref: patchHandle}
	case patchIdentity != "":
		target = schema.Target{Kind: schema.TargetNode, Identity: patchIdentity, NodeKind: patchNodeKind, ExpectedOldHash: patchOldHash}
	case patchLine > 0 && patchEndLine > 0:
		target = schema.Target{
			Kind:       schema.TargetLineRange,
			Line:       &schema.LineAnchor{Line: patchLine, Hash: patchLineHash},
			RangeEnd:   &schema.LineAnchor{Line: patchEndLine, Hash: patchEndHash},
			AutoRepair: patchAutoRepair,
		}
	case patchLine > 0:
		target = schema.Target{
			Kind:       schema.TargetLine,
			Line:       &schema.LineAnchor{Line: patchLine, Hash: patchLineHash},
			AutoRepair: patchAutoRepair,
		}
	default:
		return schema.Operation{}, ierrors.New(ierrors.InvalidRequest, "no target specified: set one of --identity, --handle, --line, or --config-path")
	}

	var kind schema.OperationKind
	switch patchOp {
	case "replace":
		kind = schema.OpReplace
	case "delete":
		if target.Kind == schema.TargetConfigPath {
			kind = schema.OpConfigDelete
		} else {
			kind = schema.OpDelete
		}
	case "insert_before":
		kind = schema.OpInsertBefore
	case "insert_after":
		kind = schema.OpInsertAfter
	case "insert":
		kind = schema.OpInsert
	case "set_line":
		kind = schema.OpSetLine
	case "replace_range":
		kind = schema.OpReplaceRange
	case "insert_after_line":
		kind = schema.OpInsertAfterLine
	case "config_set":
		kind = schema.OpConfigSet
	case "config_append":
		kind = schema.OpConfigAppend
	case "config_delete":
		kind = schema.OpConfigDelete
	default:
		return schema.Operation{}, ierrors.New(ierrors.InvalidRequest, "unrecognized --op "+patchOp)
	}

	return schema.Operation{
		Kind:          kind,
		Target:        target,
		NewText:       patchNewText,
		CreateMissing: patchCreateMiss,
	}, nil
}
