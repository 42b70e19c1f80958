// Package engine wires the pipeline components (target resolution,
// operation application, changeset composition, transaction commit)
// together into the four operations the command-line front-end drives:
// read, edit, apply, and merge. patch is edit+apply fused for one file.
package engine

import (
	"os"
	"path/filepath"

	"github.com/identedit/identedit/internal/changeset"
	"github.com/identedit/identedit/internal/configpath"
	"github.com/identedit/identedit/internal/hashing"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/logx"
	"github.com/identedit/identedit/internal/opengine"
	"github.com/identedit/identedit/internal/parseindex"
	"github.com/identedit/identedit/internal/schema"
	"github.com/identedit/identedit/internal/target"
	"github.com/identedit/identedit/internal/txn"
)

// Engine holds the dependencies every pipeline operation needs: the
// grammar provider (an injected capability, never constructed here) and a
// logger for diagnostic-only output. The engine itself is stateless
// between calls: handles and changesets are plain values with no
// hidden state tying them back to this struct.
type Engine struct {
	Provider parseindex.GrammarProvider
	Logger   *logx.Logger
}

// New returns an Engine. logger may be logx.Nop() when the caller doesn't
// want diagnostic output.
func New(provider parseindex.GrammarProvider, logger *logx.Logger) *Engine {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Engine{Provider: provider, Logger: logger}
}

// Read enumerates handles/anchors for every path under filters.
func (e *Engine) Read(paths []string, filters parseindex.Filters) (*schema.Handles, error) {
	out := &schema.Handles{}
	for _, path := range paths {
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, ierrors.Wrap(ierrors.TargetMissing, "reading "+path, err).WithFile(path)
		}
		out.FilePreconditions = append(out.FilePreconditions, schema.FilePrecondition{
			File: path, FileHash: hashing.FileHash(source),
		})
		out.Summary.FilesRead++

		result := parseindex.Index(path, source, filepath.Ext(path), e.Provider, filters)
		if result.Diagnostic != nil {
			out.Summary.Diagnostics = append(out.Summary.Diagnostics, *result.Diagnostic)
		}
		out.Handles = append(out.Handles, result.Handles...)
		out.Anchors = append(out.Anchors, result.Anchors...)
	}
	out.Summary.HandlesTotal = len(out.Handles)
	return out, nil
}

// FileEditRequest is one file's worth of operations within an EditRequest.
type FileEditRequest struct {
	File        string
	HandleTable map[string]schema.Target
	Operations  []schema.Operation
}

// EditRequest is the input to Edit: either a single-file or a batch
// request (the CLI layer flattens either JSON shape into this one type).
type EditRequest struct {
	Files []FileEditRequest
}

// fileState caches one file's bytes across operations within a single
// Edit call, so later operations in the same request see earlier ones'
// source bytes unchanged (edits are only materialized at apply time).
type fileState struct {
	bytes []byte
	ext   string
}

// Edit dry-runs req into a MultiFileChangeset without writing anything.
func (e *Engine) Edit(req EditRequest) (*schema.MultiFileChangeset, error) {
	builder := changeset.New()
	loaded := map[string]*fileState{}
	handleTables := map[string]map[string]schema.Target{}
	for _, fr := range req.Files {
		if fr.HandleTable != nil {
			handleTables[fr.File] = fr.HandleTable
		}
	}

	load := func(file string) (*fileState, error) {
		if fs, ok := loaded[file]; ok {
			return fs, nil
		}
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, ierrors.Wrap(ierrors.TargetMissing, "reading "+file, err).WithFile(file)
		}
		fs := &fileState{bytes: b, ext: filepath.Ext(file)}
		loaded[file] = fs
		builder.SetExpectedFileHash(file, hashing.FileHash(b))
		return fs, nil
	}

	for _, fr := range req.Files {
		fs, err := load(fr.File)
		if err != nil {
			return nil, err
		}
		ctx := target.Context{Ext: fs.ext, Provider: e.Provider, HandleTable: fr.HandleTable}

		for _, op := range fr.Operations {
			if op.Target.Kind == schema.TargetConfigPath {
				if err := e.planConfigOp(builder, fr.File, fs, op); err != nil {
					return nil, err
				}
				continue
			}
			if isMoveOrCopy(op.Kind) {
				if err := e.planMoveOrCopy(builder, fr.File, fs, ctx, op, load, handleTables); err != nil {
					return nil, err
				}
				continue
			}

			res, err := target.Resolve(op.Target, fs.bytes, ctx)
			if err != nil {
				return nil, withFile(err, fr.File)
			}
			result, err := opengine.Apply(op, fs.bytes, res)
			if err != nil {
				return nil, withFile(err, fr.File)
			}
			for _, edit := range result.Edits {
				builder.AddEdit(fr.File, edit)
			}
		}
	}

	return builder.Build()
}

func (e *Engine) planConfigOp(builder *changeset.Builder, file string, fs *fileState, op schema.Operation) error {
	format, ok := configpath.FormatFromExtension(fs.ext)
	if !ok {
		return ierrors.New(ierrors.InvalidRequest, "no config format registered for extension "+fs.ext).WithFile(file)
	}
	if !configpath.VerifyFileHash(fs.bytes, op.Target.ExpectedFileHash) {
		return ierrors.New(ierrors.PathChanged, "file changed since it was read: "+file).WithFile(file)
	}
	edit, err := opengine.ConfigPlan(op, fs.bytes, format)
	if err != nil {
		return withFile(err, file)
	}
	builder.AddEdit(file, edit)
	return nil
}

func (e *Engine) planMoveOrCopy(builder *changeset.Builder, file string, fs *fileState, ctx target.Context, op schema.Operation, load func(string) (*fileState, error), handleTables map[string]map[string]schema.Target) error {
	if op.Destination == nil {
		return ierrors.New(ierrors.InvalidRequest, "move/copy requires a destination target").WithFile(file)
	}
	destFile := op.DestinationFile
	if destFile == "" {
		destFile = file
	}
	destFS, err := load(destFile)
	if err != nil {
		return err
	}
	destCtx := target.Context{Ext: destFS.ext, Provider: e.Provider, HandleTable: handleTables[destFile]}

	srcRes, err := target.Resolve(op.Target, fs.bytes, ctx)
	if err != nil {
		return withFile(err, file)
	}
	destRes, err := target.Resolve(*op.Destination, destFS.bytes, destCtx)
	if err != nil {
		return withFile(err, destFile)
	}

	plan, err := opengine.PlanMoveOrCopy(op, file, fs.bytes, srcRes.Span, destFile, destRes.Span)
	if err != nil {
		return err
	}

	builder.RecordMove(plan.SourceEdit != nil, file, srcRes.Span, destFile, destRes.Span)
	if plan.SourceEdit != nil {
		builder.AddEdit(file, *plan.SourceEdit)
	}
	builder.AddEdit(destFile, plan.DestEdit)
	return nil
}

func isMoveOrCopy(k schema.OperationKind) bool {
	switch k {
	case schema.OpMoveBefore, schema.OpMoveAfter, schema.OpCopyBefore, schema.OpCopyAfter:
		return true
	default:
		return false
	}
}

func withFile(err error, file string) error {
	if e, ok := ierrors.As(err); ok && e.File == "" {
		e.WithFile(file)
	}
	return err
}

// Apply commits cs to disk via the Transaction Manager.
func (e *Engine) Apply(cs *schema.MultiFileChangeset, opts txn.Options) (*schema.ApplyResult, error) {
	result, err := txn.Apply(cs, opts)
	if err != nil {
		return nil, err
	}
	return &schema.ApplyResult{Committed: result.Committed, Files: result.Files, InjectedAfter: result.InjectedAfter}, nil
}

// Merge composes two or more previously produced changesets into one,
// applying the Changeset Composer's rules pairwise.
func (e *Engine) Merge(changesets []*schema.MultiFileChangeset) (*schema.MultiFileChangeset, error) {
	if len(changesets) == 0 {
		return nil, ierrors.New(ierrors.InvalidRequest, "merge requires at least one changeset")
	}
	merged := changesets[0]
	for _, cs := range changesets[1:] {
		var err error
		merged, err = changeset.Merge(merged, cs)
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// Patch fuses read+edit+apply for a single file and a single operation,
// the shape the patch command exposes for quick one-off edits.
func (e *Engine) Patch(file string, handleTable map[string]schema.Target, op schema.Operation, opts txn.Options) (*schema.ApplyResult, error) {
	cs, err := e.Edit(EditRequest{Files: []FileEditRequest{{File: file, HandleTable: handleTable, Operations: []schema.Operation{op}}}})
	if err != nil {
		return nil, err
	}
	return e.Apply(cs, opts)
}
