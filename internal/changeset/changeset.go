// Package changeset implements the Changeset Composer (component F): it
// takes the per-operation SpanEdits produced by the Operation Engine,
// orders them within each file, rejects overlaps, and assembles the
// MultiFileChangeset that the Transaction Manager consumes.
package changeset

import (
	"sort"

	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
)

// Builder accumulates edits per file as operations are planned, then
// produces a sorted, validated MultiFileChangeset.
type Builder struct {
	mode  schema.TransactionMode
	files map[string]*fileAccum
	order []string
	moves []moveRecord
}

// moveRecord tracks one move/copy's source and destination for the
// cross-operation checks in Build: a move's source and destination must
// not overlap when they land in the same file, and no two moves may share
// a source.
type moveRecord struct {
	isMove     bool
	sourceFile string
	sourceSpan schema.Span
	destFile   string
	destSpan   schema.Span
}

// RecordMove registers a move or copy's source/destination spans for
// cross-operation validation. Call this in addition to AddEdit/SetWholeFile
// for the actual edits.
func (b *Builder) RecordMove(isMove bool, sourceFile string, sourceSpan schema.Span, destFile string, destSpan schema.Span) {
	b.moves = append(b.moves, moveRecord{isMove: isMove, sourceFile: sourceFile, sourceSpan: sourceSpan, destFile: destFile, destSpan: destSpan})
}

type fileAccum struct {
	expectedFileHash string
	wholeFile        []byte
	hasWholeFile     bool
	edits            []schema.SpanEdit
}

// New returns an empty Builder in all_or_nothing mode (the only mode this
// specification defines).
func New() *Builder {
	return &Builder{mode: schema.AllOrNothing, files: map[string]*fileAccum{}}
}

// SetExpectedFileHash records the precondition hash a file's edits are
// predicated on (the hash observed when its targets were resolved).
func (b *Builder) SetExpectedFileHash(file, hash string) {
	b.accum(file).expectedFileHash = hash
}

// AddEdit appends one SpanEdit to file's pending list.
func (b *Builder) AddEdit(file string, edit schema.SpanEdit) {
	acc := b.accum(file)
	acc.edits = append(acc.edits, edit)
}

// SetWholeFile replaces file's content wholesale, for a caller that already
// has the full intended content rather than a span edit to splice. The
// engine's own move/copy planning never calls this — both ends of a
// cross-file move are always expressed as span edits, since the engine
// requires the destination file to already exist — so this is currently
// exercised only by Merge, which copies a FileChangeset's WholeFileContent
// forward if one was set some other way.
func (b *Builder) SetWholeFile(file string, content []byte) {
	acc := b.accum(file)
	acc.wholeFile = content
	acc.hasWholeFile = true
}

func (b *Builder) accum(file string) *fileAccum {
	acc, ok := b.files[file]
	if !ok {
		acc = &fileAccum{}
		b.files[file] = acc
		b.order = append(b.order, file)
	}
	return acc
}

// Build sorts each file's edits, rejects overlaps, and returns the
// finished changeset. A file carrying both discrete edits and a whole-file
// rewrite is an internal inconsistency (invariant 3) and is rejected.
func (b *Builder) Build() (*schema.MultiFileChangeset, error) {
	if err := b.validateMoves(); err != nil {
		return nil, err
	}
	cs := schema.NewChangeset()
	for _, file := range b.order {
		acc := b.files[file]
		if acc.hasWholeFile && len(acc.edits) > 0 {
			return nil, ierrors.New(ierrors.InvalidRequest, "file carries both span edits and a whole-file rewrite: "+file).WithFile(file)
		}

		fc := schema.FileChangeset{File: file, ExpectedFileHash: acc.expectedFileHash}
		if acc.hasWholeFile {
			fc.WholeFileContent = acc.wholeFile
			cs.Files = append(cs.Files, fc)
			continue
		}

		sorted, err := OrderAndValidate(acc.edits)
		if err != nil {
			return nil, ierrors.Wrap(ierrors.InvalidRequest, "overlapping edits in "+file, err).WithFile(file)
		}
		fc.Edits = sorted
		cs.Files = append(cs.Files, fc)
	}
	return cs, nil
}

// OrderAndValidate sorts edits by span start and rejects any pair whose
// non-zero-width spans overlap. Zero-width inserts that land at the same
// offset are ordered insert_before-before-content-before-insert_after: an
// edit targeting [p,p) sorts before one targeting [p,p) only by the order
// it was appended in (stable sort), so callers must append insert_before
// edits ahead of insert_after edits sharing an offset when both are legal.
func OrderAndValidate(edits []schema.SpanEdit) ([]schema.SpanEdit, error) {
	sorted := append([]schema.SpanEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.Start != sorted[j].Span.Start {
			return sorted[i].Span.Start < sorted[j].Span.Start
		}
		return sorted[i].Span.End < sorted[j].Span.End
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Span.Zero() || cur.Span.Zero() {
			// Two zero-width inserts at the same point are not an
			// overlap, and neither is a zero-width insert at a non-zero
			// span's boundary (where insert_before/insert_after land); a
			// zero-width insert strictly inside a non-zero span is.
			if !prev.Span.Zero() && cur.Span.Start < prev.Span.End {
				return nil, overlapError(prev, cur)
			}
			continue
		}
		if prev.Span.Overlaps(cur.Span) {
			return nil, overlapError(prev, cur)
		}
	}
	return sorted, nil
}

// validateMoves enforces the two move/copy-specific cross-operation
// rejections: a move's source and destination overlapping within the
// same file, and two moves sharing a source.
func (b *Builder) validateMoves() error {
	type sourceKey struct {
		file string
		span schema.Span
	}
	seenSources := map[sourceKey]bool{}
	for _, m := range b.moves {
		if m.sourceFile == m.destFile && m.sourceSpan.Overlaps(m.destSpan) {
			return ierrors.New(ierrors.InvalidRequest, "move/copy source and destination overlap in "+m.sourceFile).WithFile(m.sourceFile)
		}
		if !m.isMove {
			continue
		}
		key := sourceKey{file: m.sourceFile, span: m.sourceSpan}
		if seenSources[key] {
			return ierrors.New(ierrors.InvalidRequest, "two moves target the same source in "+m.sourceFile).WithFile(m.sourceFile)
		}
		seenSources[key] = true
	}
	return nil
}

func overlapError(a, b schema.SpanEdit) error {
	return ierrors.New(ierrors.InvalidRequest, "edits overlap").
		WithDetails(map[string]schema.Span{"first": a.Span, "second": b.Span})
}

// VerifyMergeHashes implements the merge command's rule: two changesets
// may only be combined file-by-file when their recorded
// expected_file_hash values for any file they share are identical.
func VerifyMergeHashes(a, b *schema.MultiFileChangeset) error {
	hashes := map[string]string{}
	for _, f := range a.Files {
		hashes[f.File] = f.ExpectedFileHash
	}
	for _, f := range b.Files {
		if h, ok := hashes[f.File]; ok && h != f.ExpectedFileHash {
			return ierrors.New(ierrors.InvalidRequest, "changesets disagree on the expected file hash for "+f.File).WithFile(f.File)
		}
	}
	return nil
}

// Merge combines two changesets into one, concatenating edits for files
// present in both (source order preserved: a's edits first) and validating
// the merged list. VerifyMergeHashes is checked first; a disagreement is
// returned as invalid_request.
func Merge(a, b *schema.MultiFileChangeset) (*schema.MultiFileChangeset, error) {
	if err := VerifyMergeHashes(a, b); err != nil {
		return nil, err
	}
	builder := New()
	for _, f := range a.Files {
		builder.SetExpectedFileHash(f.File, f.ExpectedFileHash)
		if f.WholeFileContent != nil {
			builder.SetWholeFile(f.File, f.WholeFileContent)
		}
		for _, e := range f.Edits {
			builder.AddEdit(f.File, e)
		}
	}
	for _, f := range b.Files {
		builder.SetExpectedFileHash(f.File, f.ExpectedFileHash)
		if f.WholeFileContent != nil {
			builder.SetWholeFile(f.File, f.WholeFileContent)
		}
		for _, e := range f.Edits {
			builder.AddEdit(f.File, e)
		}
	}
	return builder.Build()
}
