// Package opengine implements the Operation Engine (component E): given a
// resolved target span and an Operation, it produces the SpanEdit(s) that
// realize it, or a cross-file destination for move/copy.
package opengine

import (
	"regexp"
	"unicode/utf8"

	"github.com/identedit/identedit/internal/configpath"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
	"github.com/identedit/identedit/internal/target"
)

// Result is what applying one Operation against its resolved target
// produces: the SpanEdit(s) to splice into that file. move/copy
// operations are planned separately with PlanMoveOrCopy, since they need
// both a source and a destination resolution.
type Result struct {
	Edits []schema.SpanEdit
}

// Apply runs op against source, whose target has already been resolved.
func Apply(op schema.Operation, source []byte, resolved target.Resolved) (Result, error) {
	span := resolved.Span

	switch op.Kind {
	case schema.OpReplace:
		return Result{Edits: []schema.SpanEdit{{Span: span, Replacement: []byte(op.NewText)}}}, nil

	case schema.OpDelete:
		return Result{Edits: []schema.SpanEdit{{Span: deleteSpan(source, span), Replacement: nil}}}, nil

	case schema.OpInsertBefore:
		at := schema.Span{Start: span.Start, End: span.Start}
		return Result{Edits: []schema.SpanEdit{{Span: at, Replacement: []byte(op.NewText)}}}, nil

	case schema.OpInsertAfter:
		at := schema.Span{Start: span.End, End: span.End}
		return Result{Edits: []schema.SpanEdit{{Span: at, Replacement: []byte(op.NewText)}}}, nil

	case schema.OpInsert:
		// insert at file_start/file_end resolves to a zero-width span
		// already; the target resolver produced it.
		return Result{Edits: []schema.SpanEdit{{Span: span, Replacement: []byte(op.NewText)}}}, nil

	case schema.OpScopedRegex:
		edits, err := scopedRegex(op, source, span)
		if err != nil {
			return Result{}, err
		}
		return Result{Edits: edits}, nil

	case schema.OpSetLine:
		return Result{Edits: []schema.SpanEdit{{Span: span, Replacement: []byte(op.NewText)}}}, nil

	case schema.OpReplaceRange:
		return Result{Edits: []schema.SpanEdit{{Span: span, Replacement: []byte(op.NewText)}}}, nil

	case schema.OpInsertAfterLine:
		at := schema.Span{Start: span.End, End: span.End}
		return Result{Edits: []schema.SpanEdit{{Span: at, Replacement: []byte(op.NewText)}}}, nil

	case schema.OpMoveBefore, schema.OpMoveAfter, schema.OpCopyBefore, schema.OpCopyAfter:
		return Result{}, ierrors.New(ierrors.InvalidRequest, "move/copy operations are planned with opengine.PlanMoveOrCopy, not Apply")

	default:
		return Result{}, ierrors.New(ierrors.InvalidRequest, "unsupported operation kind for byte-span targets: "+string(op.Kind))
	}
}

// deleteSpan extends span to also consume one adjacent newline when
// deleting it as-is would leave a blank line: both the byte immediately
// before the span and the byte immediately after it are newlines (or file
// boundaries). The following newline is collapsed preferentially; the
// preceding one only when there is no following newline to take.
func deleteSpan(source []byte, span schema.Span) schema.Span {
	start, end := span.Start, span.End
	before := start == 0 || source[start-1] == '\n'
	after := end == len(source) || (end < len(source) && source[end] == '\n')
	if !before || !after {
		return schema.Span{Start: start, End: end}
	}
	if end < len(source) && source[end] == '\n' {
		return schema.Span{Start: start, End: end + 1}
	}
	if start > 0 && source[start-1] == '\n' {
		return schema.Span{Start: start - 1, End: end}
	}
	return schema.Span{Start: start, End: end}
}

// scopedRegex runs a RE2 regular expression confined to [span.Start,
// span.End) and returns one SpanEdit per match (or just the first when
// flags.Global is false). Matches are required to fall on UTF-8 code
// point boundaries relative to the scope, which RE2 already guarantees
// since it is itself a UTF-8-aware engine operating on []byte.
func scopedRegex(op schema.Operation, source []byte, span schema.Span) ([]schema.SpanEdit, error) {
	pattern := op.Pattern
	var prefix string
	if op.Flags.CaseInsensitive {
		prefix += "i"
	}
	if op.Flags.Multiline {
		prefix += "m"
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ierrors.New(ierrors.InvalidRequest, "invalid scoped_regex pattern: "+err.Error())
	}

	scope := source[span.Start:span.End]
	if !utf8.Valid(scope) {
		return nil, ierrors.New(ierrors.InvalidRequest, "scoped_regex target span is not valid UTF-8")
	}

	var matches [][]int
	if op.Flags.Global {
		matches = re.FindAllSubmatchIndex(scope, -1)
	} else if m := re.FindSubmatchIndex(scope); m != nil {
		matches = [][]int{m}
	}
	if len(matches) == 0 {
		return nil, ierrors.New(ierrors.TargetMissing, "scoped_regex pattern did not match within the target span")
	}

	edits := make([]schema.SpanEdit, 0, len(matches))
	for _, m := range matches {
		replacement := re.ExpandString(nil, op.Replacement, string(scope), m)
		edits = append(edits, schema.SpanEdit{
			Span:        schema.Span{Start: span.Start + m[0], End: span.Start + m[1]},
			Replacement: replacement,
		})
	}
	return edits, nil
}

// ConfigPlan computes the edit for a config-path set/append/delete
// operation, bypassing the generic byte-span Target Resolver entirely:
// config mutations need format-specific punctuation knowledge (comma
// bookkeeping, indentation, quoting) that the node/line resolvers don't
// carry. The caller is responsible for having already verified
// op.Target.ExpectedFileHash against source via configpath.VerifyFileHash.
func ConfigPlan(op schema.Operation, source []byte, format configpath.Format) (schema.SpanEdit, error) {
	path := op.Target.Path
	var plan configpath.MutationPlan
	var err error

	switch op.Kind {
	case schema.OpConfigSet:
		if !op.CreateMissing {
			if _, rerr := configpath.Resolve(source, format, path, false); rerr != nil {
				return schema.SpanEdit{}, rerr
			}
		}
		plan, err = configpath.PlanSet(source, format, path, op.NewText)
	case schema.OpConfigAppend:
		plan, err = configpath.PlanAppend(source, format, path, op.NewText)
	case schema.OpConfigDelete:
		plan, err = configpath.PlanDelete(source, format, path)
	default:
		return schema.SpanEdit{}, ierrors.New(ierrors.InvalidRequest, "unsupported config-path operation: "+string(op.Kind))
	}
	if err != nil {
		return schema.SpanEdit{}, err
	}
	return schema.SpanEdit{Span: plan.Span, Replacement: plan.Replacement}, nil
}

// MoveOrCopyPlan is the pair of edits a move/copy operation produces: a
// removal at the source span (omitted for copy) and an insertion at the
// destination span. SameFile tells the Changeset Composer whether both
// edits land in one FileChangeset or two.
type MoveOrCopyPlan struct {
	SourceFile string
	SourceEdit *schema.SpanEdit // nil for copy

	DestFile  string
	DestEdit  schema.SpanEdit

	SameFile bool
}

// PlanMoveOrCopy builds the edit pair for a move_before/move_after/
// copy_before/copy_after operation. sourceFile/sourceSpan identify the
// node being moved or copied (already resolved by the Target Resolver
// against sourceBytes); destFile/destSpan identify where it lands
// (resolved against destBytes, which may be the same file).
func PlanMoveOrCopy(op schema.Operation, sourceFile string, sourceBytes []byte, sourceSpan schema.Span, destFile string, destSpan schema.Span) (MoveOrCopyPlan, error) {
	text := append([]byte(nil), sourceBytes[sourceSpan.Start:sourceSpan.End]...)

	var insertAt int
	switch op.Kind {
	case schema.OpMoveBefore, schema.OpCopyBefore:
		insertAt = destSpan.Start
	case schema.OpMoveAfter, schema.OpCopyAfter:
		insertAt = destSpan.End
	default:
		return MoveOrCopyPlan{}, ierrors.New(ierrors.InvalidRequest, "not a move/copy operation: "+string(op.Kind))
	}

	plan := MoveOrCopyPlan{
		SourceFile: sourceFile,
		DestFile:   destFile,
		DestEdit:   schema.SpanEdit{Span: schema.Span{Start: insertAt, End: insertAt}, Replacement: text},
		SameFile:   sourceFile == destFile,
	}

	if op.Kind == schema.OpMoveBefore || op.Kind == schema.OpMoveAfter {
		removal := deleteSpan(sourceBytes, sourceSpan)
		plan.SourceEdit = &schema.SpanEdit{Span: removal, Replacement: nil}
	}
	return plan, nil
}
