// Package testutil provides a golden-file comparison helper shared by
// package-level tests across the editing pipeline, adapted from the
// fixture-based golden testing this codebase previously used for
// language-analysis output.
package testutil

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// updateGolden controls whether golden files should be updated.
// Use: go test ./... -update
var updateGolden = flag.Bool("update", false, "update golden files")

// ShouldUpdate returns true if golden files should be updated.
func ShouldUpdate() bool {
	return *updateGolden
}

// CompareGoldenJSON marshals got to indented JSON and compares it against
// testdata/<name>.golden.json, failing with a diff on mismatch. With
// -update, it writes got as the new golden file instead of comparing.
func CompareGoldenJSON(t *testing.T, name string, got any) {
	t.Helper()

	data, err := json.MarshalIndent(got, "", "  ")
	if err != nil {
		t.Fatalf("marshaling golden comparison value: %v", err)
	}
	data = append(data, '\n')

	goldenPath := filepath.Join("testdata", name+".golden.json")
	if *updateGolden {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			t.Fatalf("creating testdata directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, data, 0644); err != nil {
			t.Fatalf("writing golden file: %v", err)
		}
		t.Logf("updated golden file: %s", goldenPath)
		return
	}

	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("golden file missing: %s\n\ngot:\n%s\n\nrun with -update to create it", goldenPath, data)
		}
		t.Fatalf("reading golden file: %v", err)
	}

	if !bytes.Equal(expected, data) {
		t.Fatalf("golden mismatch for %s:\n%s\nrun with -update to refresh", name, unifiedDiff(string(expected), string(data), goldenPath))
	}
}

// unifiedDiff produces a simple unified diff between two strings, enough
// to locate a mismatch without pulling in a diff library.
func unifiedDiff(expected, got, path string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %s (expected)\n", path)
	fmt.Fprintf(&buf, "+++ %s (got)\n", path)

	expectedLines := strings.Split(expected, "\n")
	gotLines := strings.Split(got, "\n")
	max := len(expectedLines)
	if len(gotLines) > max {
		max = len(gotLines)
	}
	for i := 0; i < max; i++ {
		var e, g string
		if i < len(expectedLines) {
			e = expectedLines[i]
		}
		if i < len(gotLines) {
			g = gotLines[i]
		}
		if e == g {
			continue
		}
		if i < len(expectedLines) {
			fmt.Fprintf(&buf, "-%s\n", e)
		}
		if i < len(gotLines) {
			fmt.Fprintf(&buf, "+%s\n", g)
		}
	}
	return buf.String()
}
