// Package stubgrammar implements a synthetic parseindex.Grammar with no
// native dependency, so the core pipeline can be exercised by its own
// tests without linking tree-sitter.
//
// The grammar recognizes a tiny line-oriented language: the file is split
// into blocks on blank lines. A block whose first line starts with "def "
// or "func " is a function_definition; "class " starts a class_definition;
// anything else is an anonymous block. Two magic markers exist purely for
// tests: a file whose first line is "##PARSE_ERROR##" reports a hard error
// at the root; a block whose first line is "##ERROR_BLOCK##" is itself an
// error node, so its subtree is omitted from parse index results.
package stubgrammar

import (
	"strings"

	"github.com/identedit/identedit/internal/parseindex"
)

// Provider serves the stub grammar for a configurable set of extensions
// (defaulting to ".stub" if none are given).
type Provider struct {
	extensions map[string]bool
}

// New creates a Provider serving the stub grammar for exts (or ".stub" by
// default).
func New(exts ...string) *Provider {
	if len(exts) == 0 {
		exts = []string{".stub"}
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return &Provider{extensions: m}
}

func (p *Provider) For(extension string) (parseindex.Grammar, bool) {
	if p.extensions[extension] {
		return grammar{}, true
	}
	return nil, false
}

type grammar struct{}

type node struct {
	kind     string
	name     string
	start    int
	end      int
	children []*node
	isError  bool
}

func (n *node) Kind() string      { return n.kind }
func (n *node) StartByte() int    { return n.start }
func (n *node) EndByte() int      { return n.end }
func (n *node) ChildCount() int   { return len(n.children) }
func (n *node) IsError() bool     { return n.isError }
func (n *node) Child(i int) parseindex.Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

func (grammar) Parse(source []byte) (parseindex.Node, error) {
	text := string(source)
	if strings.HasPrefix(text, "##PARSE_ERROR##") {
		return &node{kind: "module", start: 0, end: len(source), isError: true}, nil
	}

	root := &node{kind: "module", start: 0, end: len(source)}

	lineStart := 0
	blockStart := -1
	flush := func(blockEnd int) {
		if blockStart < 0 {
			return
		}
		block := text[blockStart:blockEnd]
		firstLine := block
		if i := strings.IndexByte(block, '\n'); i >= 0 {
			firstLine = block[:i]
		}
		kind, name, isError := classify(firstLine)
		root.children = append(root.children, &node{
			kind: kind, name: name, start: blockStart, end: blockEnd, isError: isError,
		})
		blockStart = -1
	}

	for lineStart <= len(text) {
		nl := strings.IndexByte(text[lineStart:], '\n')
		var line string
		var lineEnd int
		if nl < 0 {
			line = text[lineStart:]
			lineEnd = len(text)
		} else {
			line = text[lineStart : lineStart+nl]
			lineEnd = lineStart + nl + 1
		}

		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			flush(lineStart)
		} else if blockStart < 0 {
			blockStart = lineStart
		}

		if nl < 0 {
			break
		}
		lineStart = lineEnd
	}
	flush(len(text))

	return root, nil
}

func classify(firstLine string) (kind, name string, isError bool) {
	trimmed := strings.TrimRight(firstLine, "\r")
	switch {
	case trimmed == "##ERROR_BLOCK##":
		return "block", "", true
	case strings.HasPrefix(trimmed, "def "):
		return "function_definition", extractName(trimmed, "def "), false
	case strings.HasPrefix(trimmed, "func "):
		return "function_definition", extractName(trimmed, "func "), false
	case strings.HasPrefix(trimmed, "class "):
		return "class_definition", extractName(trimmed, "class "), false
	default:
		return "block", "", false
	}
}

func extractName(line, prefix string) string {
	rest := strings.TrimPrefix(line, prefix)
	rest = strings.TrimLeft(rest, " \t")
	end := len(rest)
	for i, r := range rest {
		if r == '(' || r == ':' || r == ' ' || r == '\t' {
			end = i
			break
		}
	}
	return rest[:end]
}

func (grammar) NameOf(n parseindex.Node, source []byte) string {
	if sn, ok := n.(*node); ok {
		return sn.name
	}
	return ""
}
