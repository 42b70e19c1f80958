package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/identedit/identedit/internal/engine"
	"github.com/identedit/identedit/internal/hashing"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/parseindex"
	"github.com/identedit/identedit/internal/schema"
	"github.com/identedit/identedit/internal/stubgrammar"
	"github.com/identedit/identedit/internal/txn"
)

func newEngine() *engine.Engine {
	return engine.New(stubgrammar.New(".stub"), nil)
}

func writeFile(t *testing.T, dir, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	return path
}

func TestReadEnumeratesHandlesAndPreconditions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.stub", "def foo():\n    pass\n")

	handles, err := newEngine().Read([]string{path}, parseindex.Filters{Mode: parseindex.Structural})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handles.Summary.FilesRead != 1 {
		t.Fatalf("got FilesRead=%d", handles.Summary.FilesRead)
	}
	if len(handles.FilePreconditions) != 1 || handles.FilePreconditions[0].File != path {
		t.Fatalf("got %+v", handles.FilePreconditions)
	}
	var sawFunction bool
	for _, h := range handles.Handles {
		if h.Kind == "function_definition" && h.Name == "foo" {
			sawFunction = true
		}
	}
	if !sawFunction {
		t.Fatalf("expected a function_definition handle for foo, got %+v", handles.Handles)
	}
}

func TestEditThenApplyReplacesNodeOnDisk(t *testing.T) {
	dir := t.TempDir()
	content := "def foo():\n    pass\n"
	path := writeFile(t, dir, "a.stub", content)

	text := []byte(content)
	identity := hashing.NodeIdentity("function_definition", "foo", text)
	oldHash := hashing.ExpectedOldHash(text)

	e := newEngine()
	cs, err := e.Edit(engine.EditRequest{Files: []engine.FileEditRequest{{
		File: path,
		Operations: []schema.Operation{{
			Kind: schema.OpReplace,
			Target: schema.Target{
				Kind: schema.TargetNode, NodeKind: "function_definition",
				Identity: identity, ExpectedOldHash: oldHash,
			},
			NewText: "def foo():\n    return 1\n",
		}},
	}}})
	if err != nil {
		t.Fatalf("unexpected error from Edit: %v", err)
	}

	result, err := e.Apply(cs, txn.Options{})
	if err != nil {
		t.Fatalf("unexpected error from Apply: %v", err)
	}
	if !result.Committed {
		t.Fatal("expected Committed=true")
	}

	got, _ := os.ReadFile(path)
	if string(got) != "def foo():\n    return 1\n" {
		t.Fatalf("got %q", got)
	}
}

func TestEditThenExternalModificationCausesApplyToFail(t *testing.T) {
	dir := t.TempDir()
	content := "def foo():\n    pass\n"
	path := writeFile(t, dir, "a.stub", content)

	text := []byte(content)
	identity := hashing.NodeIdentity("function_definition", "foo", text)
	oldHash := hashing.ExpectedOldHash(text)

	e := newEngine()
	cs, err := e.Edit(engine.EditRequest{Files: []engine.FileEditRequest{{
		File: path,
		Operations: []schema.Operation{{
			Kind: schema.OpReplace,
			Target: schema.Target{
				Kind: schema.TargetNode, NodeKind: "function_definition",
				Identity: identity, ExpectedOldHash: oldHash,
			},
			NewText: "def foo():\n    return 2\n",
		}},
	}}})
	if err != nil {
		t.Fatalf("unexpected error from Edit: %v", err)
	}

	// Someone else changes the file on disk between edit and apply.
	if err := os.WriteFile(path, []byte("def foo():\n    pass  # edited elsewhere\n"), 0644); err != nil {
		t.Fatalf("simulating external edit: %v", err)
	}

	_, err = e.Apply(cs, txn.Options{})
	ierr, ok := ierrors.As(err)
	if !ok || ierr.Kind != ierrors.PathChanged {
		t.Fatalf("got %v, want path_changed", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "def foo():\n    pass  # edited elsewhere\n" {
		t.Fatalf("file must be left as the external edit left it, got %q", got)
	}
}

func TestEditAmbiguousTargetDisambiguatedBySpanHint(t *testing.T) {
	dir := t.TempDir()
	content := "def foo():\n    pass\n\ndef foo():\n    pass\n"
	path := writeFile(t, dir, "a.stub", content)

	text := []byte("def foo():\n    pass\n")
	identity := hashing.NodeIdentity("function_definition", "foo", text)
	oldHash := hashing.ExpectedOldHash(text)
	secondStart := len(content) - len(text)

	e := newEngine()
	cs, err := e.Edit(engine.EditRequest{Files: []engine.FileEditRequest{{
		File: path,
		Operations: []schema.Operation{{
			Kind: schema.OpDelete,
			Target: schema.Target{
				Kind: schema.TargetNode, NodeKind: "function_definition",
				Identity: identity, ExpectedOldHash: oldHash,
				SpanHint: &schema.SpanHint{Start: secondStart, End: len(content)},
			},
		}},
	}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := e.Apply(cs, txn.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Committed {
		t.Fatal("expected Committed=true")
	}

	got, _ := os.ReadFile(path)
	if string(got) != "def foo():\n    pass\n" {
		t.Fatalf("expected only the second occurrence (plus its separating blank line) removed, got %q", got)
	}
}

func TestEditConfigPathAppend(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"tags": ["a", "b"]}`)

	e := newEngine()
	cs, err := e.Edit(engine.EditRequest{Files: []engine.FileEditRequest{{
		File: path,
		Operations: []schema.Operation{{
			Kind:    schema.OpConfigAppend,
			Target:  schema.Target{Kind: schema.TargetConfigPath, Path: "tags"},
			NewText: `"c"`,
		}},
	}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := e.Apply(cs, txn.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Committed {
		t.Fatal("expected Committed=true")
	}

	got, _ := os.ReadFile(path)
	if !contains(string(got), `"c"`) {
		t.Fatalf("expected appended element in %q", got)
	}
}

func TestPatchFusesEditAndApply(t *testing.T) {
	dir := t.TempDir()
	content := "one\ntwo\nthree\n"
	path := writeFile(t, dir, "a.stub", content)

	anchor := schema.LineAnchor{Line: 2, Hash: hashing.LineAnchorHash([]byte("two"))}
	e := newEngine()
	result, err := e.Patch(path, nil, schema.Operation{
		Kind:   schema.OpReplace,
		Target: schema.Target{Kind: schema.TargetLine, Line: &anchor},
		NewText: "TWO\n",
	}, txn.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Committed {
		t.Fatal("expected Committed=true")
	}

	got, _ := os.ReadFile(path)
	if string(got) != "one\nTWO\nthree\n" {
		t.Fatalf("got %q", got)
	}
}

func TestEditMoveAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	srcContent := "def foo():\n    pass\n"
	destContent := "def bar():\n    pass\n"
	srcPath := writeFile(t, dir, "src.stub", srcContent)
	destPath := writeFile(t, dir, "dest.stub", destContent)

	srcText := []byte(srcContent)
	srcIdentity := hashing.NodeIdentity("function_definition", "foo", srcText)
	srcHash := hashing.ExpectedOldHash(srcText)

	e := newEngine()
	cs, err := e.Edit(engine.EditRequest{Files: []engine.FileEditRequest{{
		File: srcPath,
		Operations: []schema.Operation{{
			Kind: schema.OpMoveAfter,
			Target: schema.Target{
				Kind: schema.TargetNode, NodeKind: "function_definition",
				Identity: srcIdentity, ExpectedOldHash: srcHash,
			},
			Destination:     &schema.Target{Kind: schema.TargetFileEnd},
			DestinationFile: destPath,
		}},
	}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := e.Apply(cs, txn.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Committed {
		t.Fatal("expected Committed=true")
	}

	gotSrc, _ := os.ReadFile(srcPath)
	if string(gotSrc) != "" {
		t.Fatalf("expected the moved function's source file to be emptied, got %q", gotSrc)
	}
	gotDest, _ := os.ReadFile(destPath)
	if !contains(string(gotDest), "def foo():\n    pass\n") {
		t.Fatalf("expected the moved function to appear in the destination file, got %q", gotDest)
	}
}

func TestMergeCombinesTwoIndependentEdits(t *testing.T) {
	dir := t.TempDir()
	content := "one\ntwo\nthree\n"
	path := writeFile(t, dir, "a.stub", content)

	anchorTwo := schema.LineAnchor{Line: 2, Hash: hashing.LineAnchorHash([]byte("two"))}
	anchorThree := schema.LineAnchor{Line: 3, Hash: hashing.LineAnchorHash([]byte("three"))}

	e := newEngine()
	csA, err := e.Edit(engine.EditRequest{Files: []engine.FileEditRequest{{
		File:       path,
		Operations: []schema.Operation{{Kind: schema.OpReplace, Target: schema.Target{Kind: schema.TargetLine, Line: &anchorTwo}, NewText: "TWO\n"}},
	}}})
	if err != nil {
		t.Fatalf("unexpected error building csA: %v", err)
	}
	csB, err := e.Edit(engine.EditRequest{Files: []engine.FileEditRequest{{
		File:       path,
		Operations: []schema.Operation{{Kind: schema.OpReplace, Target: schema.Target{Kind: schema.TargetLine, Line: &anchorThree}, NewText: "THREE\n"}},
	}}})
	if err != nil {
		t.Fatalf("unexpected error building csB: %v", err)
	}

	merged, err := e.Merge([]*schema.MultiFileChangeset{csA, csB})
	if err != nil {
		t.Fatalf("unexpected error from Merge: %v", err)
	}

	result, err := e.Apply(merged, txn.Options{})
	if err != nil {
		t.Fatalf("unexpected error from Apply: %v", err)
	}
	if !result.Committed {
		t.Fatal("expected Committed=true")
	}

	got, _ := os.ReadFile(path)
	if string(got) != "one\nTWO\nTHREE\n" {
		t.Fatalf("got %q", got)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
