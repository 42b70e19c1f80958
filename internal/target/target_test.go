package target_test

import (
	"testing"

	"github.com/identedit/identedit/internal/hashing"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/schema"
	"github.com/identedit/identedit/internal/stubgrammar"
	"github.com/identedit/identedit/internal/target"
)

func ctx() target.Context {
	return target.Context{Ext: ".stub", Provider: stubgrammar.New(".stub")}
}

func TestResolveNodeByIdentity(t *testing.T) {
	source := []byte("def foo():\n    pass\n")
	text := []byte("def foo():\n    pass\n")
	identity := hashing.NodeIdentity("function_definition", "foo", text)
	oldHash := hashing.ExpectedOldHash(text)

	res, err := target.Resolve(schema.Target{
		Kind: schema.TargetNode, NodeKind: "function_definition",
		Identity: identity, ExpectedOldHash: oldHash,
	}, source, ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Span.Start != 0 || res.Span.End != len(source) {
		t.Fatalf("got span %+v", res.Span)
	}
}

func TestResolveNodeMissing(t *testing.T) {
	source := []byte("def foo():\n    pass\n")
	_, err := target.Resolve(schema.Target{
		Kind: schema.TargetNode, NodeKind: "function_definition", Identity: "deadbeefdeadbeef",
	}, source, ctx())
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.TargetMissing {
		t.Fatalf("got %v, want target_missing", err)
	}
}

func TestResolveNodePreconditionFailed(t *testing.T) {
	source := []byte("def foo():\n    pass\n")
	text := source
	identity := hashing.NodeIdentity("function_definition", "foo", text)

	_, err := target.Resolve(schema.Target{
		Kind: schema.TargetNode, NodeKind: "function_definition",
		Identity: identity, ExpectedOldHash: "0000000000000000",
	}, source, ctx())
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.PreconditionFailed {
		t.Fatalf("got %v, want precondition_failed", err)
	}
}

func TestResolveNodeAmbiguousWithoutSpanHint(t *testing.T) {
	// Two identical functions share identity.
	source := []byte("def foo():\n    pass\n\ndef foo():\n    pass\n")
	text := []byte("def foo():\n    pass\n")
	identity := hashing.NodeIdentity("function_definition", "foo", text)
	oldHash := hashing.ExpectedOldHash(text)

	_, err := target.Resolve(schema.Target{
		Kind: schema.TargetNode, NodeKind: "function_definition",
		Identity: identity, ExpectedOldHash: oldHash,
	}, source, ctx())
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.AmbiguousTarget {
		t.Fatalf("got %v, want ambiguous_target", err)
	}
}

func TestResolveNodeDisambiguatedBySpanHint(t *testing.T) {
	source := []byte("def foo():\n    pass\n\ndef foo():\n    pass\n")
	text := []byte("def foo():\n    pass\n")
	identity := hashing.NodeIdentity("function_definition", "foo", text)
	oldHash := hashing.ExpectedOldHash(text)

	secondStart := len(source) - len(text)
	res, err := target.Resolve(schema.Target{
		Kind: schema.TargetNode, NodeKind: "function_definition",
		Identity: identity, ExpectedOldHash: oldHash,
		SpanHint: &schema.SpanHint{Start: secondStart, End: len(source)},
	}, source, ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Span.Start != secondStart {
		t.Fatalf("got span %+v, want start %d", res.Span, secondStart)
	}
}

func TestResolveFileStartAndEnd(t *testing.T) {
	source := []byte("hello\n")
	startRes, err := target.Resolve(schema.Target{Kind: schema.TargetFileStart}, source, ctx())
	if err != nil || startRes.Span != (schema.Span{Start: 0, End: 0}) {
		t.Fatalf("got %+v, %v", startRes, err)
	}
	endRes, err := target.Resolve(schema.Target{Kind: schema.TargetFileEnd}, source, ctx())
	if err != nil || endRes.Span != (schema.Span{Start: len(source), End: len(source)}) {
		t.Fatalf("got %+v, %v", endRes, err)
	}
}

func TestResolveFileBoundaryPreconditionFailed(t *testing.T) {
	source := []byte("hello\n")
	_, err := target.Resolve(schema.Target{Kind: schema.TargetFileStart, ExpectedFileHash: "stale"}, source, ctx())
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.PreconditionFailed {
		t.Fatalf("got %v, want precondition_failed", err)
	}
}

func TestResolveLineExactAnchor(t *testing.T) {
	source := []byte("one\ntwo\nthree\n")
	anchor := schema.LineAnchor{Line: 2, Hash: hashing.LineAnchorHash([]byte("two"))}
	res, err := target.Resolve(schema.Target{Kind: schema.TargetLine, Line: &anchor}, source, ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(source[res.Span.Start:res.Span.End]) != "two\n" {
		t.Fatalf("got %q", source[res.Span.Start:res.Span.End])
	}
}

func TestResolveLineStaleWithoutAutoRepairFails(t *testing.T) {
	source := []byte("one\nTWO\nthree\n")
	anchor := schema.LineAnchor{Line: 2, Hash: hashing.LineAnchorHash([]byte("two"))}
	_, err := target.Resolve(schema.Target{Kind: schema.TargetLine, Line: &anchor}, source, ctx())
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.PreconditionFailed {
		t.Fatalf("got %v, want precondition_failed", err)
	}
}

func TestResolveLineAutoRepairFindsShiftedLine(t *testing.T) {
	// Anchor still claims line 2, but "two" is now on line 3 after an
	// insertion above it; auto_repair should locate it uniquely.
	source := []byte("one\ninserted\ntwo\nthree\n")
	anchor := schema.LineAnchor{Line: 2, Hash: hashing.LineAnchorHash([]byte("two"))}
	res, err := target.Resolve(schema.Target{Kind: schema.TargetLine, Line: &anchor, AutoRepair: true}, source, ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RemappedLine != 3 {
		t.Fatalf("got RemappedLine=%d, want 3", res.RemappedLine)
	}
	if string(source[res.Span.Start:res.Span.End]) != "two\n" {
		t.Fatalf("got %q", source[res.Span.Start:res.Span.End])
	}
}

func TestResolveLineRange(t *testing.T) {
	source := []byte("one\ntwo\nthree\nfour\n")
	start := schema.LineAnchor{Line: 2, Hash: hashing.LineAnchorHash([]byte("two"))}
	end := schema.LineAnchor{Line: 3, Hash: hashing.LineAnchorHash([]byte("three"))}
	res, err := target.Resolve(schema.Target{Kind: schema.TargetLineRange, Line: &start, RangeEnd: &end}, source, ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(source[res.Span.Start:res.Span.End]) != "two\nthree\n" {
		t.Fatalf("got %q", source[res.Span.Start:res.Span.End])
	}
}

func TestResolveHandleRef(t *testing.T) {
	source := []byte("hello\n")
	table := map[string]schema.Target{"start": {Kind: schema.TargetFileStart}}
	c := ctx()
	c.HandleTable = table
	res, err := target.Resolve(schema.Target{Kind: schema.TargetHandleRef, Ref: "start"}, source, c)
	if err != nil || res.Span != (schema.Span{Start: 0, End: 0}) {
		t.Fatalf("got %+v, %v", res, err)
	}
}

func TestResolveHandleRefMissing(t *testing.T) {
	_, err := target.Resolve(schema.Target{Kind: schema.TargetHandleRef, Ref: "nope"}, []byte("x"), ctx())
	e, ok := ierrors.As(err)
	if !ok || e.Kind != ierrors.InvalidRequest {
		t.Fatalf("got %v, want invalid_request", err)
	}
}
