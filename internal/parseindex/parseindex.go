// Package parseindex implements the Parse Index (component B): it walks a
// file's parse tree through an injected GrammarProvider and enumerates the
// structural nodes a read or target resolution needs.
package parseindex

import (
	"github.com/identedit/identedit/internal/hashing"
	"github.com/identedit/identedit/internal/schema"
)

// Node is the minimal surface the Parse Index needs from a parse tree node.
// Concrete grammars (tree-sitter-backed or a synthetic stub) adapt their
// own node types to this interface.
type Node interface {
	Kind() string
	StartByte() int
	EndByte() int
	ChildCount() int
	Child(i int) Node
	IsError() bool
}

// Grammar parses one file's bytes into a tree and names its nodes. Naming
// is a per-language rule (e.g. the identifier child of a function
// declaration); grammars without a rule for a node kind return "" and the
// node is recorded as anonymous.
type Grammar interface {
	Parse(source []byte) (Node, error)
	NameOf(node Node, source []byte) string
}

// GrammarProvider resolves a file extension (including the leading dot, as
// returned by path/filepath.Ext, e.g. ".go") to a Grammar. This is the
// capability the core consumes; loading native grammar libraries is
// entirely outside the core's concern.
type GrammarProvider interface {
	For(extension string) (Grammar, bool)
}

// Mode selects structural (tree-sitter-driven) or line (anchor) indexing.
type Mode string

const (
	Structural Mode = "structural"
	LineMode   Mode = "line"
)

// Filters narrows which nodes a read or scan returns.
type Filters struct {
	Kind        []string // exact kind set; empty means no filter
	ExcludeKind []string
	NameGlob    string // case-sensitive, '*' and '?'
	Mode        Mode
	Verbose     bool
}

func (f Filters) passes(kind, name string) bool {
	if len(f.Kind) > 0 && !contains(f.Kind, kind) {
		return false
	}
	if contains(f.ExcludeKind, kind) {
		return false
	}
	if f.NameGlob != "" && !globMatch(f.NameGlob, name) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// globMatch matches name against a pattern using only '*' (any run of
// characters) and '?' (exactly one character), case-sensitively.
func globMatch(pattern, name string) bool {
	return globMatchBytes([]byte(pattern), []byte(name))
}

func globMatchBytes(p, s []byte) bool {
	var pIdx, sIdx, star, sTmp int
	star = -1
	for sIdx < len(s) {
		if pIdx < len(p) && (p[pIdx] == '?' || p[pIdx] == s[sIdx]) {
			pIdx++
			sIdx++
			continue
		}
		if pIdx < len(p) && p[pIdx] == '*' {
			star = pIdx
			sTmp = sIdx
			pIdx++
			continue
		}
		if star >= 0 {
			pIdx = star + 1
			sTmp++
			sIdx = sTmp
			continue
		}
		return false
	}
	for pIdx < len(p) && p[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(p)
}

// ParseResult is the outcome of indexing one file's bytes.
type ParseResult struct {
	Handles    []schema.NodeHandle
	Anchors    []schema.LineAnchor
	Diagnostic *schema.Diagnostic // non-nil on no_provider / parse_failure
}

// Index parses source through provider (when in structural mode) and
// returns the handles/anchors passing filters. A nil Diagnostic means the
// file was indexed without incident; diagnostics for no_provider and
// parse_failure are non-fatal by design — callers decide whether to treat
// them as hard failures (the Target Resolver does) or as aggregated
// per-file notes (the read command does).
func Index(path string, source []byte, ext string, provider GrammarProvider, filters Filters) ParseResult {
	if filters.Mode == LineMode {
		return ParseResult{Anchors: lineAnchors(source)}
	}

	grammar, ok := provider.For(ext)
	if !ok {
		return ParseResult{Diagnostic: &schema.Diagnostic{
			File: path, Kind: "no_provider",
			Message: "no grammar registered for extension " + ext,
		}}
	}

	root, err := grammar.Parse(source)
	if err != nil {
		return ParseResult{Diagnostic: &schema.Diagnostic{
			File: path, Kind: "parse_failure", Message: err.Error(),
		}}
	}
	if root.IsError() {
		return ParseResult{Diagnostic: &schema.Diagnostic{
			File: path, Kind: "parse_failure",
			Message: "grammar reported a hard error node at the root",
		}}
	}

	var handles []schema.NodeHandle
	omitted := 0
	walkPreOrder(root, func(n Node) {
		if n.IsError() || subtreeHasError(n) {
			omitted++
			return
		}
		kind := n.Kind()
		name := grammar.NameOf(n, source)
		if !filters.passes(kind, name) {
			return
		}
		start, end := n.StartByte(), n.EndByte()
		text := source[start:end]
		handles = append(handles, schema.NodeHandle{
			File:            path,
			Span:            schema.Span{Start: start, End: end},
			Kind:            kind,
			Name:            name,
			Identity:        hashing.NodeIdentity(kind, name, text),
			ExpectedOldHash: hashing.ExpectedOldHash(text),
		})
	})

	result := ParseResult{Handles: handles}
	if filters.Verbose && omitted > 0 {
		result.Diagnostic = &schema.Diagnostic{
			File: path, Kind: "recoverable_errors",
			Message: "omitted nodes overlapping recoverable parse errors",
		}
	}
	return result
}

// walkPreOrder visits n and its descendants in source order (pre-order,
// children visited in index order, which tree-sitter already guarantees
// matches start-offset order).
func walkPreOrder(n Node, visit func(Node)) {
	visit(n)
	for i := 0; i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			walkPreOrder(c, visit)
		}
	}
}

func subtreeHasError(n Node) bool {
	if n.IsError() {
		return true
	}
	for i := 0; i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && subtreeHasError(c) {
			return true
		}
	}
	return false
}

func lineAnchors(source []byte) []schema.LineAnchor {
	lines := hashing.SplitLines(source)
	// A trailing empty tail after the final newline is not a real line.
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 && len(source) > 0 && source[len(source)-1] == '\n' {
		lines = lines[:n-1]
	}
	anchors := make([]schema.LineAnchor, 0, len(lines))
	for i, l := range lines {
		anchors = append(anchors, schema.LineAnchor{
			Line: i + 1,
			Hash: hashing.LineAnchorHash(l),
		})
	}
	return anchors
}

// FindByKind returns every node of the given kind in source, regardless of
// name/exclude filters — used by the Target Resolver to locate candidate
// nodes for a node Target by identity.
func FindByKind(source []byte, ext string, provider GrammarProvider, kind string) ([]schema.NodeHandle, *schema.Diagnostic) {
	result := Index("", source, ext, provider, Filters{Kind: []string{kind}, Mode: Structural})
	return result.Handles, result.Diagnostic
}
