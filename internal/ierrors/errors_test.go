package ierrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/identedit/identedit/internal/ierrors"
)

func TestNewAttachesDefaultRecoveryHint(t *testing.T) {
	e := ierrors.New(ierrors.AmbiguousTarget, "two nodes match")
	if e.RecoveryHint != "provide span_hint to disambiguate" {
		t.Fatalf("got %q", e.RecoveryHint)
	}
	if e.Error() != "[ambiguous_target] two nodes match" {
		t.Fatalf("got %q", e.Error())
	}
}

func TestWrapChainsCauseThroughUnwrap(t *testing.T) {
	cause := errors.New("file not found")
	e := ierrors.Wrap(ierrors.TargetMissing, "reading a.go", cause)
	if !errors.Is(e, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if e.Error() != "[target_missing] reading a.go: file not found" {
		t.Fatalf("got %q", e.Error())
	}
}

func TestWithFileTargetDetailsAreFluent(t *testing.T) {
	e := ierrors.New(ierrors.PreconditionFailed, "hash mismatch").
		WithFile("a.go").
		WithTarget("function_definition:foo").
		WithDetails(map[string]string{"expected": "aaa", "got": "bbb"})
	if e.File != "a.go" || e.Target != "function_definition:foo" {
		t.Fatalf("got %+v", e)
	}
	details, ok := e.Details.(map[string]string)
	if !ok || details["expected"] != "aaa" {
		t.Fatalf("got %+v", e.Details)
	}
}

func TestExitCodeTaxonomy(t *testing.T) {
	cases := map[ierrors.Kind]int{
		ierrors.InvalidRequest:     2,
		ierrors.PreconditionFailed: 3,
		ierrors.TargetMissing:      3,
		ierrors.PathChanged:        3,
		ierrors.AmbiguousTarget:    4,
		ierrors.ResourceBusy:       5,
		ierrors.ParseFailure:       6,
		ierrors.NoProvider:         6,
		ierrors.RollbackFailed:     7,
		ierrors.Internal:           1,
	}
	for kind, want := range cases {
		if got := ierrors.ExitCode(kind); got != want {
			t.Fatalf("%s: got %d, want %d", kind, got, want)
		}
	}
}

func TestAsFindsWrappedStructuredError(t *testing.T) {
	inner := ierrors.New(ierrors.ResourceBusy, "file locked")
	outer := fmt.Errorf("applying changeset: %w", inner)

	e, ok := ierrors.As(outer)
	if !ok || e.Kind != ierrors.ResourceBusy {
		t.Fatalf("got %v, %v", e, ok)
	}
}

func TestAsReportsFalseForPlainErrors(t *testing.T) {
	_, ok := ierrors.As(errors.New("plain error"))
	if ok {
		t.Fatal("expected As to report false for a plain error")
	}
}
