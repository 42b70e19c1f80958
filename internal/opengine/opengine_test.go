package opengine_test

import (
	"testing"

	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/opengine"
	"github.com/identedit/identedit/internal/schema"
	"github.com/identedit/identedit/internal/target"
)

func TestApplyReplace(t *testing.T) {
	source := []byte("const x = 1\n")
	res, err := opengine.Apply(schema.Operation{
		Kind: schema.OpReplace, NewText: "const x = 2",
	}, source, target.Resolved{Span: schema.Span{Start: 0, End: len(source) - 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Edits) != 1 || string(res.Edits[0].Replacement) != "const x = 2" {
		t.Fatalf("got %+v", res.Edits)
	}
}

func TestApplyDeleteCollapsesFollowingNewline(t *testing.T) {
	// The targeted span is exactly one whole line; deleting it should also
	// consume its trailing newline so no blank line is left behind.
	source := []byte("one\ntwo\nthree\n")
	span := schema.Span{Start: 4, End: 7} // "two" without its newline
	res, err := opengine.Apply(schema.Operation{Kind: schema.OpDelete}, source, target.Resolved{Span: span})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	edit := res.Edits[0]
	if edit.Span.Start != 4 || edit.Span.End != 8 {
		t.Fatalf("got span %+v, want [4,8) to also consume the trailing newline", edit.Span)
	}
}

func TestApplyDeleteMidLineLeavesNewlinesAlone(t *testing.T) {
	source := []byte("one two three\n")
	span := schema.Span{Start: 4, End: 7} // "two" in the middle of a line
	res, err := opengine.Apply(schema.Operation{Kind: schema.OpDelete}, source, target.Resolved{Span: span})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Edits[0].Span != span {
		t.Fatalf("got %+v, want unchanged span %+v", res.Edits[0].Span, span)
	}
}

func TestApplyInsertBeforeAndAfter(t *testing.T) {
	span := schema.Span{Start: 5, End: 10}
	before, err := opengine.Apply(schema.Operation{Kind: schema.OpInsertBefore, NewText: "X"}, nil, target.Resolved{Span: span})
	if err != nil || before.Edits[0].Span != (schema.Span{Start: 5, End: 5}) {
		t.Fatalf("got %+v, %v", before, err)
	}
	after, err := opengine.Apply(schema.Operation{Kind: schema.OpInsertAfter, NewText: "X"}, nil, target.Resolved{Span: span})
	if err != nil || after.Edits[0].Span != (schema.Span{Start: 10, End: 10}) {
		t.Fatalf("got %+v, %v", after, err)
	}
}

func TestApplyScopedRegexSingleMatch(t *testing.T) {
	source := []byte("foo bar foo")
	op := schema.Operation{
		Kind: schema.OpScopedRegex, Pattern: "foo", Replacement: "baz",
	}
	res, err := opengine.Apply(op, source, target.Resolved{Span: schema.Span{Start: 0, End: len(source)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Edits) != 1 || res.Edits[0].Span != (schema.Span{Start: 0, End: 3}) {
		t.Fatalf("got %+v", res.Edits)
	}
}

func TestApplyScopedRegexGlobal(t *testing.T) {
	source := []byte("foo bar foo")
	op := schema.Operation{
		Kind: schema.OpScopedRegex, Pattern: "foo", Replacement: "baz",
		Flags: schema.RegexFlags{Global: true},
	}
	res, err := opengine.Apply(op, source, target.Resolved{Span: schema.Span{Start: 0, End: len(source)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Edits) != 2 {
		t.Fatalf("got %d edits, want 2", len(res.Edits))
	}
}

func TestApplyScopedRegexNoMatch(t *testing.T) {
	source := []byte("nothing here")
	op := schema.Operation{Kind: schema.OpScopedRegex, Pattern: "xyz", Replacement: "q"}
	_, err := opengine.Apply(op, source, target.Resolved{Span: schema.Span{Start: 0, End: len(source)}})
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.TargetMissing {
		t.Fatalf("got %v, want target_missing", err)
	}
}

func TestApplyScopedRegexInvalidPattern(t *testing.T) {
	source := []byte("text")
	op := schema.Operation{Kind: schema.OpScopedRegex, Pattern: "(unclosed", Replacement: "x"}
	_, err := opengine.Apply(op, source, target.Resolved{Span: schema.Span{Start: 0, End: len(source)}})
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.InvalidRequest {
		t.Fatalf("got %v, want invalid_request", err)
	}
}

func TestApplyMoveRejectedFromApply(t *testing.T) {
	_, err := opengine.Apply(schema.Operation{Kind: schema.OpMoveBefore}, nil, target.Resolved{})
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.InvalidRequest {
		t.Fatalf("got %v, want invalid_request directing callers to PlanMoveOrCopy", err)
	}
}

func TestPlanMoveOrCopyCopyHasNoSourceEdit(t *testing.T) {
	sourceBytes := []byte("func A() {}\nfunc B() {}\n")
	sourceSpan := schema.Span{Start: 0, End: 12} // "func A() {}\n"
	destSpan := schema.Span{Start: len(sourceBytes), End: len(sourceBytes)}

	plan, err := opengine.PlanMoveOrCopy(schema.Operation{Kind: schema.OpCopyAfter}, "f.go", sourceBytes, sourceSpan, "f.go", destSpan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.SourceEdit != nil {
		t.Fatalf("copy must not produce a source edit, got %+v", plan.SourceEdit)
	}
	if string(plan.DestEdit.Replacement) != "func A() {}\n" {
		t.Fatalf("got replacement %q", plan.DestEdit.Replacement)
	}
}

func TestPlanMoveOrCopyMoveHasSourceEdit(t *testing.T) {
	sourceBytes := []byte("func A() {}\nfunc B() {}\n")
	sourceSpan := schema.Span{Start: 0, End: 12}
	destSpan := schema.Span{Start: len(sourceBytes), End: len(sourceBytes)}

	plan, err := opengine.PlanMoveOrCopy(schema.Operation{Kind: schema.OpMoveAfter}, "f.go", sourceBytes, sourceSpan, "f.go", destSpan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.SourceEdit == nil {
		t.Fatal("move must produce a source removal edit")
	}
	// The source span already ends with the block's own newline and is
	// followed by another line, so deleteSpan leaves it unchanged.
	if plan.SourceEdit.Span != (schema.Span{Start: 0, End: 12}) {
		t.Fatalf("got source edit span %+v", plan.SourceEdit.Span)
	}
}

func TestPlanMoveOrCopyCrossFile(t *testing.T) {
	sourceBytes := []byte("func A() {}\n")
	sourceSpan := schema.Span{Start: 0, End: len(sourceBytes)}
	destBytes := []byte("package other\n")
	destSpan := schema.Span{Start: len(destBytes), End: len(destBytes)}

	plan, err := opengine.PlanMoveOrCopy(schema.Operation{Kind: schema.OpMoveBefore}, "a.go", sourceBytes, sourceSpan, "b.go", destSpan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.SameFile {
		t.Fatal("expected SameFile=false across files")
	}
	if plan.DestFile != "b.go" || plan.SourceFile != "a.go" {
		t.Fatalf("got %+v", plan)
	}
}
