// Package target implements the Target Resolver (component D): given a
// Target and the current bytes of a file, it returns a concrete byte span
// together with the outcome of verifying that target's precondition.
package target

import (
	"fmt"

	"github.com/identedit/identedit/internal/hashing"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/parseindex"
	"github.com/identedit/identedit/internal/schema"
)

// autoRepairWindow is the number of lines on either side of a stale
// anchor's reported line number that auto_repair searches for a unique
// match.
const autoRepairWindow = 32

// Resolved is the outcome of resolving one Target.
type Resolved struct {
	Span schema.Span
	// RemappedLine is set when auto_repair relocated a stale line anchor;
	// zero otherwise.
	RemappedLine int
}

// Context carries everything a resolution might need beyond the target
// and file bytes: the file's extension (for grammar lookup), the grammar
// provider, and the per-request handle table for handle_ref indirection.
type Context struct {
	Ext          string
	Provider     parseindex.GrammarProvider
	HandleTable  map[string]schema.Target
}

// Resolve dispatches on target.Kind and returns the resolved span, or an
// *ierrors.Error describing why resolution failed.
func Resolve(t schema.Target, source []byte, ctx Context) (Resolved, error) {
	switch t.Kind {
	case schema.TargetNode:
		return resolveNode(t, source, ctx)
	case schema.TargetHandleRef:
		return resolveHandleRef(t, source, ctx)
	case schema.TargetFileStart:
		return resolveFileBoundary(t, source, true)
	case schema.TargetFileEnd:
		return resolveFileBoundary(t, source, false)
	case schema.TargetLine:
		return resolveLine(t, source)
	case schema.TargetLineRange:
		return resolveLineRange(t, source)
	default:
		return Resolved{}, ierrors.New(ierrors.InvalidRequest, fmt.Sprintf("unsupported target kind: %s", t.Kind))
	}
}

func resolveHandleRef(t schema.Target, source []byte, ctx Context) (Resolved, error) {
	referenced, ok := ctx.HandleTable[t.Ref]
	if !ok {
		return Resolved{}, ierrors.New(ierrors.InvalidRequest, fmt.Sprintf("handle ref %q not found in this file's handle table", t.Ref)).
			WithTarget(t.Ref)
	}
	return Resolve(referenced, source, ctx)
}

func resolveNode(t schema.Target, source []byte, ctx Context) (Resolved, error) {
	candidates, diag := parseindex.FindByKind(source, ctx.Ext, ctx.Provider, t.NodeKind)
	if diag != nil {
		kind := ierrors.ParseFailure
		if diag.Kind == "no_provider" {
			kind = ierrors.NoProvider
		}
		return Resolved{}, ierrors.New(kind, diag.Message)
	}

	var matches []schema.NodeHandle
	for _, h := range candidates {
		if h.Identity == t.Identity {
			matches = append(matches, h)
		}
	}

	var chosen *schema.NodeHandle
	switch {
	case len(matches) == 0:
		return Resolved{}, ierrors.New(ierrors.TargetMissing, fmt.Sprintf("no %s node with identity %s", t.NodeKind, t.Identity)).
			WithTarget(t.Identity)
	case len(matches) == 1:
		chosen = &matches[0]
	default:
		if t.SpanHint == nil {
			return Resolved{}, ierrors.New(ierrors.AmbiguousTarget, fmt.Sprintf("%d nodes share identity %s; provide span_hint", len(matches), t.Identity)).
				WithTarget(t.Identity)
		}
		hint := schema.Span{Start: t.SpanHint.Start, End: t.SpanHint.End}
		best := -1
		bestOverlap := 0
		tie := false
		for i, m := range matches {
			ov := overlap(m.Span, hint)
			if ov > bestOverlap {
				bestOverlap = ov
				best = i
				tie = false
			} else if ov == bestOverlap && ov > 0 {
				tie = true
			}
		}
		if best < 0 || tie {
			return Resolved{}, ierrors.New(ierrors.AmbiguousTarget, fmt.Sprintf("span_hint does not uniquely select one of %d candidates", len(matches))).
				WithTarget(t.Identity)
		}
		chosen = &matches[best]
	}

	if chosen.ExpectedOldHash != t.ExpectedOldHash {
		return Resolved{}, ierrors.New(ierrors.PreconditionFailed, "node text changed since it was read").
			WithTarget(t.Identity).
			WithDetails(map[string]string{"expected": t.ExpectedOldHash, "observed": chosen.ExpectedOldHash})
	}

	return Resolved{Span: chosen.Span}, nil
}

func overlap(a, b schema.Span) int {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

func resolveFileBoundary(t schema.Target, source []byte, start bool) (Resolved, error) {
	if t.ExpectedFileHash != "" && hashing.FileHash(source) != t.ExpectedFileHash {
		return Resolved{}, ierrors.New(ierrors.PreconditionFailed, "file changed since it was read").
			WithDetails(map[string]string{"expected": t.ExpectedFileHash, "observed": hashing.FileHash(source)})
	}
	if start {
		return Resolved{Span: schema.Span{Start: 0, End: 0}}, nil
	}
	n := len(source)
	return Resolved{Span: schema.Span{Start: n, End: n}}, nil
}

func resolveLine(t schema.Target, source []byte) (Resolved, error) {
	if t.Line == nil {
		return Resolved{}, ierrors.New(ierrors.InvalidRequest, "line target missing line anchor")
	}
	return resolveLineAnchor(*t.Line, source, t.AutoRepair)
}

func resolveLineRange(t schema.Target, source []byte) (Resolved, error) {
	if t.Line == nil || t.RangeEnd == nil {
		return Resolved{}, ierrors.New(ierrors.InvalidRequest, "line_range target missing start/end anchors")
	}
	startRes, err := resolveLineAnchor(*t.Line, source, t.AutoRepair)
	if err != nil {
		return Resolved{}, err
	}
	endRes, err := resolveLineAnchor(*t.RangeEnd, source, t.AutoRepair)
	if err != nil {
		return Resolved{}, err
	}
	startLine := t.Line.Line
	if startRes.RemappedLine != 0 {
		startLine = startRes.RemappedLine
	}
	endLine := t.RangeEnd.Line
	if endRes.RemappedLine != 0 {
		endLine = endRes.RemappedLine
	}
	lineStart, _ := lineByteRange(source, startLine)
	_, lineEnd := lineByteRange(source, endLine)
	return Resolved{Span: schema.Span{Start: lineStart, End: lineEnd}}, nil
}

func resolveLineAnchor(anchor schema.LineAnchor, source []byte, autoRepair bool) (Resolved, error) {
	lines := hashing.SplitLines(source)
	if anchor.Line >= 1 && anchor.Line <= len(lines) && hashing.LineAnchorHash(lines[anchor.Line-1]) == anchor.Hash {
		start, end := lineByteRange(source, anchor.Line)
		return Resolved{Span: schema.Span{Start: start, End: end}}, nil
	}

	if !autoRepair {
		return Resolved{}, ierrors.New(ierrors.PreconditionFailed, fmt.Sprintf("line %d no longer matches its anchor", anchor.Line)).
			WithTarget(fmt.Sprintf("%d:%s", anchor.Line, anchor.Hash))
	}

	lo := anchor.Line - autoRepairWindow
	if lo < 1 {
		lo = 1
	}
	hi := anchor.Line + autoRepairWindow
	if hi > len(lines) {
		hi = len(lines)
	}

	found := -1
	count := 0
	for ln := lo; ln <= hi; ln++ {
		if hashing.LineAnchorHash(lines[ln-1]) == anchor.Hash {
			found = ln
			count++
		}
	}
	if count != 1 {
		return Resolved{}, ierrors.New(ierrors.PreconditionFailed, fmt.Sprintf("auto_repair found %d candidate lines for anchor %s within +/-%d lines", count, anchor.Hash, autoRepairWindow)).
			WithTarget(fmt.Sprintf("%d:%s", anchor.Line, anchor.Hash))
	}

	start, end := lineByteRange(source, found)
	return Resolved{Span: schema.Span{Start: start, End: end}, RemappedLine: found}, nil
}

// lineByteRange returns the [start,end) byte range of 1-based line n,
// including its terminating newline if one exists (so a set_line/delete
// replacing the whole line also consumes its newline deterministically).
func lineByteRange(source []byte, n int) (int, int) {
	line := 1
	start := 0
	for i := 0; i < len(source); i++ {
		if line == n && start == 0 && (i == 0 || source[i-1] == '\n') {
			start = i
		}
		if source[i] == '\n' {
			if line == n {
				return start, i + 1
			}
			line++
		}
	}
	if line == n {
		return start, len(source)
	}
	return len(source), len(source)
}
