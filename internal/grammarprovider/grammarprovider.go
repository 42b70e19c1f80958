// Package grammarprovider implements parseindex.GrammarProvider over
// github.com/smacker/go-tree-sitter, adapted from the per-language
// dispatch and name-extraction rules used elsewhere in this codebase.
//
// Loading and caching native grammars is the one concern the core
// pipeline never does itself: it only ever sees the parseindex.Grammar
// interface.
package grammarprovider

import (
	"fmt"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/identedit/identedit/internal/parseindex"
)

var extensionLanguage = map[string]string{
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".py":   "python",
	".rs":   "rust",
	".java": "java",
	".kt":   "kotlin",
	".kts":  "kotlin",
}

// SupportedExtensions lists every file extension this provider can parse,
// sorted, for the admin-facing grammar listing command.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionLanguage))
	for ext := range extensionLanguage {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func languageFor(id string) (*sitter.Language, error) {
	switch id {
	case "go":
		return golang.GetLanguage(), nil
	case "javascript":
		return javascript.GetLanguage(), nil
	case "typescript":
		return typescript.GetLanguage(), nil
	case "tsx":
		return tsx.GetLanguage(), nil
	case "python":
		return python.GetLanguage(), nil
	case "rust":
		return rust.GetLanguage(), nil
	case "java":
		return java.GetLanguage(), nil
	case "kotlin":
		return kotlin.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", id)
	}
}

// Provider is a process-lifetime cache of loaded *sitter.Language values,
// read-only after first load.
type Provider struct {
	mu     sync.Mutex
	loaded map[string]*sitter.Language
}

// New creates a Provider. Grammars are loaded lazily on first use.
func New() *Provider {
	return &Provider{loaded: make(map[string]*sitter.Language)}
}

func (p *Provider) For(extension string) (parseindex.Grammar, bool) {
	langID, ok := extensionLanguage[extension]
	if !ok {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	lang, ok := p.loaded[langID]
	if !ok {
		var err error
		lang, err = languageFor(langID)
		if err != nil {
			return nil, false
		}
		p.loaded[langID] = lang
	}
	return treeSitterGrammar{lang: lang, langID: langID}, true
}

type treeSitterGrammar struct {
	lang   *sitter.Language
	langID string
}

func (g treeSitterGrammar) Parse(source []byte) (parseindex.Node, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(g.lang)
	tree, err := parser.ParseCtx(nil, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return sitterNode{n: tree.RootNode()}, nil
}

func (g treeSitterGrammar) NameOf(n parseindex.Node, source []byte) string {
	sn, ok := n.(sitterNode)
	if !ok {
		return ""
	}
	return nameOf(sn.n, source, g.langID)
}

// sitterNode adapts *sitter.Node to parseindex.Node.
type sitterNode struct {
	n *sitter.Node
}

func (s sitterNode) Kind() string    { return s.n.Type() }
func (s sitterNode) StartByte() int  { return int(s.n.StartByte()) }
func (s sitterNode) EndByte() int    { return int(s.n.EndByte()) }
func (s sitterNode) ChildCount() int { return int(s.n.ChildCount()) }
func (s sitterNode) IsError() bool   { return s.n.IsError() || s.n.IsMissing() }
func (s sitterNode) Child(i int) parseindex.Node {
	c := s.n.Child(i)
	if c == nil {
		return nil
	}
	return sitterNode{n: c}
}

// nameOf selects the identifier child that names a node, following the
// per-language rules a function/class/method-name extractor needs.
func nameOf(n *sitter.Node, source []byte, langID string) string {
	var nameNode *sitter.Node

	switch langID {
	case "go":
		if n.Type() == "type_declaration" {
			for i := 0; i < int(n.ChildCount()); i++ {
				if c := n.Child(i); c != nil && c.Type() == "type_spec" {
					nameNode = c.ChildByFieldName("name")
					break
				}
			}
		} else {
			nameNode = n.ChildByFieldName("name")
			if nameNode == nil {
				for i := 0; i < int(n.ChildCount()); i++ {
					if c := n.Child(i); c != nil && c.Type() == "identifier" {
						nameNode = c
						break
					}
				}
			}
		}
	case "rust":
		nameNode = n.ChildByFieldName("name")
		if nameNode == nil && n.Type() == "impl_item" {
			for i := 0; i < int(n.ChildCount()); i++ {
				if c := n.Child(i); c != nil && c.Type() == "type_identifier" {
					nameNode = c
					break
				}
			}
		}
	case "kotlin":
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil && (c.Type() == "simple_identifier" || c.Type() == "type_identifier") {
				nameNode = c
				break
			}
		}
	default: // javascript, typescript, tsx, python, java
		nameNode = n.ChildByFieldName("name")
	}

	if nameNode == nil {
		return ""
	}
	return string(source[nameNode.StartByte():nameNode.EndByte()])
}
