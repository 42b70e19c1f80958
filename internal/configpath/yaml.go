package configpath

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/identedit/identedit/internal/schema"
)

// YAML resolution is scoped to a subset: block and flow
// mappings/sequences/scalars. Anchors and aliases are detected and
// rejected (invalid_request) rather than
// silently resolved or merged, since yaml.Node's merge-key expansion would
// make the resolved span ambiguous with respect to the original source.

type yamlResolver struct{}

// lineOffsets precomputes the byte offset of the start of each 1-based
// line in source, for converting yaml.Node Line/Column into byte offsets.
type lineOffsets struct {
	source []byte
	starts []int
}

func newLineOffsets(source []byte) *lineOffsets {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineOffsets{source: source, starts: starts}
}

// offset converts a 1-based (line, column) pair, where column counts
// runes as yaml.v3's scanner does, into a byte offset.
func (lo *lineOffsets) offset(line, column int) int {
	if line < 1 || line > len(lo.starts) {
		return len(lo.source)
	}
	lineStart := lo.starts[line-1]
	lineEnd := len(lo.source)
	if line < len(lo.starts) {
		lineEnd = lo.starts[line]
	}
	text := lo.source[lineStart:lineEnd]
	runes := 0
	for i := range string(text) {
		if runes == column-1 {
			return lineStart + i
		}
		runes++
	}
	return lineEnd
}

func (lo *lineOffsets) lineStart(line int) int {
	if line < 1 {
		return 0
	}
	if line > len(lo.starts) {
		return len(lo.source)
	}
	return lo.starts[line-1]
}

func (lo *lineOffsets) lineEnd(line int) int {
	if line < 1 || line >= len(lo.starts) {
		return len(lo.source)
	}
	return lo.starts[line]
}

func hasAnchorOrAlias(n *yaml.Node) bool {
	if n == nil {
		return false
	}
	if n.Kind == yaml.AliasNode || n.Anchor != "" {
		return true
	}
	for _, c := range n.Content {
		if hasAnchorOrAlias(c) {
			return true
		}
	}
	return false
}

func (yamlResolver) resolve(source []byte, segs []Segment, createMissing bool) (Resolution, error) {
	node, lo, err := parseYAMLDoc(source)
	if err != nil {
		return Resolution{}, err
	}

	cur := node
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.IsIndex {
			if cur.Kind != yaml.SequenceNode {
				return Resolution{}, invalidRequest("segment %d expects a sequence, found yaml kind %d", i, cur.Kind)
			}
			if seg.Index < 0 || seg.Index >= len(cur.Content) {
				return Resolution{}, targetMissing("array index %d out of range (len %d)", seg.Index, len(cur.Content))
			}
			cur = cur.Content[seg.Index]
			continue
		}

		if cur.Kind != yaml.MappingNode {
			return Resolution{}, invalidRequest("segment %d expects a mapping, found yaml kind %d", i, cur.Kind)
		}
		valueNode := findMappingValue(cur, seg.Key)
		if valueNode == nil {
			if last && createMissing {
				return yamlInsertionPoint(lo, cur), nil
			}
			return Resolution{}, targetMissing("key %q not found", seg.Key)
		}
		cur = valueNode
	}

	if hasAnchorOrAlias(cur) {
		return Resolution{}, invalidRequest("ambiguous YAML anchor/alias at resolved path")
	}

	start := lo.offset(cur.Line, cur.Column)
	end := yamlScalarEnd(source, lo, cur, start)
	return Resolution{Span: schema.Span{Start: start, End: end}, Type: yamlValueType(cur)}, nil
}

func parseYAMLDoc(source []byte) (*yaml.Node, *lineOffsets, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, nil, invalidRequest("malformed YAML: %v", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil, invalidRequest("empty YAML document")
	}
	if hasAnchorOrAlias(doc.Content[0]) {
		return nil, nil, invalidRequest("ambiguous YAML anchor/alias in document")
	}
	return doc.Content[0], newLineOffsets(source), nil
}

func findMappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func yamlValueType(n *yaml.Node) ValueType {
	switch n.Kind {
	case yaml.SequenceNode:
		return TypeArray
	case yaml.MappingNode:
		return TypeObject
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!bool":
			return TypeBool
		case "!!int", "!!float":
			return TypeNumber
		case "!!null":
			return TypeNull
		default:
			return TypeString
		}
	default:
		return TypeString
	}
}

// yamlScalarEnd finds the end byte offset of a scalar's raw representation
// starting at start. Plain and quoted single-line scalars are supported;
// block scalars (| and >) conservatively extend to the end of their
// reported line, a known limitation of this subset.
func yamlScalarEnd(source []byte, lo *lineOffsets, n *yaml.Node, start int) int {
	if n.Kind != yaml.ScalarNode {
		// Containers: best-effort, the value ends at the end of its
		// start line; callers resolving into containers use Span only
		// for create_missing bookkeeping, not for replace.
		return lo.lineEnd(n.Line)
	}
	switch n.Style {
	case yaml.DoubleQuotedStyle, yaml.SingleQuotedStyle:
		quote := source[start]
		i := start + 1
		for i < len(source) {
			if source[i] == '\\' && n.Style == yaml.DoubleQuotedStyle {
				i += 2
				continue
			}
			if source[i] == quote {
				return i + 1
			}
			i++
		}
		return len(source)
	case yaml.LiteralStyle, yaml.FoldedStyle:
		return lo.lineEnd(n.Line)
	default:
		end := lo.lineEnd(n.Line)
		// Trim trailing comment/whitespace/newline from a plain scalar.
		for end > start && (source[end-1] == '\n' || source[end-1] == '\r' || source[end-1] == ' ' || source[end-1] == '\t') {
			end--
		}
		if idx := strings.Index(string(source[start:end]), " #"); idx >= 0 {
			end = start + idx
		}
		return end
	}
}

func yamlInsertionPoint(lo *lineOffsets, mapping *yaml.Node) Resolution {
	indent := "  "
	var insertAt int
	if len(mapping.Content) > 0 {
		lastVal := mapping.Content[len(mapping.Content)-1]
		keyNode := mapping.Content[len(mapping.Content)-2]
		indent = strings.Repeat(" ", keyNode.Column-1)
		insertAt = lo.lineEnd(lastVal.Line)
		// lastVal may itself be multi-line (block scalar/nested); walk to
		// the true end isn't tracked, so insert right after its own line.
	} else {
		insertAt = lo.lineEnd(mapping.Line)
	}
	return Resolution{Span: schema.Span{Start: insertAt, End: insertAt}, Type: TypeObject, Insertion: true, Indent: indent}
}

func yamlPlanSet(source []byte, segs []Segment, newText string) (MutationPlan, error) {
	res, err := (yamlResolver{}).resolve(source, segs, true)
	if err != nil {
		return MutationPlan{}, err
	}
	last := segs[len(segs)-1]
	if res.Insertion {
		line := res.Indent + last.Key + ": " + newText + "\n"
		return MutationPlan{Span: res.Span, Replacement: []byte(line)}, nil
	}
	return MutationPlan{Span: res.Span, Replacement: []byte(newText)}, nil
}

func yamlPlanAppend(source []byte, segs []Segment, newElementText string) (MutationPlan, error) {
	node, lo, err := parseYAMLDoc(source)
	if err != nil {
		return MutationPlan{}, err
	}
	cur := node
	for _, seg := range segs {
		if seg.IsIndex {
			if cur.Kind != yaml.SequenceNode || seg.Index < 0 || seg.Index >= len(cur.Content) {
				return MutationPlan{}, targetMissing("array index %d out of range", seg.Index)
			}
			cur = cur.Content[seg.Index]
			continue
		}
		if cur.Kind != yaml.MappingNode {
			return MutationPlan{}, invalidRequest("path segment expects a mapping")
		}
		v := findMappingValue(cur, seg.Key)
		if v == nil {
			return MutationPlan{}, targetMissing("key %q not found", seg.Key)
		}
		cur = v
	}
	if cur.Kind != yaml.SequenceNode {
		return MutationPlan{}, invalidRequest("append target is not a sequence")
	}

	var indent string
	var insertAt int
	if len(cur.Content) > 0 {
		last := cur.Content[len(cur.Content)-1]
		// last.Column is the item's content column, two past its "- ".
		indent = ""
		if last.Column > 3 {
			indent = strings.Repeat(" ", last.Column-3)
		}
		insertAt = lo.lineEnd(last.Line)
	} else {
		indent = strings.Repeat(" ", cur.Column-1)
		insertAt = lo.lineEnd(cur.Line)
	}
	line := indent + "- " + newElementText + "\n"
	return MutationPlan{Span: schema.Span{Start: insertAt, End: insertAt}, Replacement: []byte(line)}, nil
}

func yamlPlanDelete(source []byte, segs []Segment) (MutationPlan, error) {
	parentSegs, lastSeg := segs[:len(segs)-1], segs[len(segs)-1]
	node, lo, err := parseYAMLDoc(source)
	if err != nil {
		return MutationPlan{}, err
	}
	// lastLine is the last line on which any node inside n starts, so a
	// nested mapping or sequence is removed together with its key.
	var lastLine func(n *yaml.Node) int
	lastLine = func(n *yaml.Node) int {
		l := n.Line
		for _, c := range n.Content {
			if cl := lastLine(c); cl > l {
				l = cl
			}
		}
		return l
	}
	cur := node
	for _, seg := range parentSegs {
		if seg.IsIndex {
			if cur.Kind != yaml.SequenceNode || seg.Index < 0 || seg.Index >= len(cur.Content) {
				return MutationPlan{}, targetMissing("array index %d out of range", seg.Index)
			}
			cur = cur.Content[seg.Index]
			continue
		}
		if cur.Kind != yaml.MappingNode {
			return MutationPlan{}, invalidRequest("path segment expects a mapping")
		}
		v := findMappingValue(cur, seg.Key)
		if v == nil {
			return MutationPlan{}, targetMissing("key %q not found", seg.Key)
		}
		cur = v
	}

	if lastSeg.IsIndex {
		if cur.Kind != yaml.SequenceNode || lastSeg.Index < 0 || lastSeg.Index >= len(cur.Content) {
			return MutationPlan{}, targetMissing("array index %d out of range", lastSeg.Index)
		}
		target := cur.Content[lastSeg.Index]
		start := lo.lineStart(target.Line)
		end := lo.lineEnd(lastLine(target))
		return MutationPlan{Span: schema.Span{Start: start, End: end}, Replacement: nil}, nil
	}

	if cur.Kind != yaml.MappingNode {
		return MutationPlan{}, invalidRequest("delete target's parent is not a mapping")
	}
	for i := 0; i+1 < len(cur.Content); i += 2 {
		if cur.Content[i].Value != lastSeg.Key {
			continue
		}
		keyNode, valNode := cur.Content[i], cur.Content[i+1]
		start := lo.lineStart(keyNode.Line)
		endLine := lastLine(valNode)
		if valNode.Kind == yaml.ScalarNode && (valNode.Style == yaml.LiteralStyle || valNode.Style == yaml.FoldedStyle) {
			// Best-effort: block scalars beyond one line are a known
			// limitation of this subset.
			endLine = valNode.Line
		}
		end := lo.lineEnd(endLine)
		return MutationPlan{Span: schema.Span{Start: start, End: end}, Replacement: nil}, nil
	}
	return MutationPlan{}, targetMissing("key %q not found", lastSeg.Key)
}
