package configpath

import (
	"fmt"
	"strings"

	"github.com/identedit/identedit/internal/schema"
)

// The encoding/json decoder does not expose source byte offsets for
// individual values, so this package carries its own minimal JSON scanner
// whose only job is locating byte spans — it intentionally does not
// attempt full RFC 8259 validation beyond what's needed to walk a
// well-formed document written by a real JSON encoder.

type jsonKind int

const (
	jNull jsonKind = iota
	jBool
	jNumber
	jString
	jArray
	jObject
)

type jsonValue struct {
	kind     jsonKind
	span     schema.Span // value's own span, trimmed of surrounding whitespace
	members  []jsonMember
	elements []jsonElement
}

type jsonMember struct {
	key         string
	keySpan     schema.Span
	value       jsonValue
	entrySpan   schema.Span // key..value, no surrounding comma
	commaBefore *schema.Span
	commaAfter  *schema.Span
}

type jsonElement struct {
	value       jsonValue
	commaBefore *schema.Span
	commaAfter  *schema.Span
}

func (v jsonValue) valueType() ValueType {
	switch v.kind {
	case jNull:
		return TypeNull
	case jBool:
		return TypeBool
	case jNumber:
		return TypeNumber
	case jString:
		return TypeString
	case jArray:
		return TypeArray
	default:
		return TypeObject
	}
}

type jsonParser struct {
	src []byte
	pos int
}

func (p *jsonParser) skipWS() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *jsonParser) parseValue() (jsonValue, error) {
	p.skipWS()
	if p.pos >= len(p.src) {
		return jsonValue{}, fmt.Errorf("unexpected end of JSON input")
	}
	switch p.src[p.pos] {
	case '{':
		return p.parseObject()
	case '[':
		return p.parseArray()
	case '"':
		start := p.pos
		if err := p.skipString(); err != nil {
			return jsonValue{}, err
		}
		return jsonValue{kind: jString, span: schema.Span{Start: start, End: p.pos}}, nil
	case 't':
		return p.literal("true", jBool)
	case 'f':
		return p.literal("false", jBool)
	case 'n':
		return p.literal("null", jNull)
	default:
		return p.parseNumber()
	}
}

func (p *jsonParser) literal(lit string, kind jsonKind) (jsonValue, error) {
	if !strings.HasPrefix(string(p.src[p.pos:]), lit) {
		return jsonValue{}, fmt.Errorf("invalid literal at offset %d", p.pos)
	}
	start := p.pos
	p.pos += len(lit)
	return jsonValue{kind: kind, span: schema.Span{Start: start, End: p.pos}}, nil
}

func (p *jsonParser) parseNumber() (jsonValue, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return jsonValue{}, fmt.Errorf("invalid value at offset %d", p.pos)
	}
	return jsonValue{kind: jNumber, span: schema.Span{Start: start, End: p.pos}}, nil
}

func (p *jsonParser) skipString() error {
	if p.src[p.pos] != '"' {
		return fmt.Errorf("expected string at offset %d", p.pos)
	}
	p.pos++
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
		case '"':
			p.pos++
			return nil
		default:
			p.pos++
		}
	}
	return fmt.Errorf("unterminated string")
}

func (p *jsonParser) parseStringLiteral() (string, schema.Span, error) {
	start := p.pos
	if err := p.skipString(); err != nil {
		return "", schema.Span{}, err
	}
	raw := string(p.src[start+1 : p.pos-1])
	return unescapeJSON(raw), schema.Span{Start: start, End: p.pos}, nil
}

func unescapeJSON(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (p *jsonParser) parseObject() (jsonValue, error) {
	start := p.pos
	p.pos++ // {
	obj := jsonValue{kind: jObject}
	p.skipWS()
	var lastComma *schema.Span
	for p.pos < len(p.src) && p.src[p.pos] != '}' {
		p.skipWS()
		if p.pos < len(p.src) && p.src[p.pos] == '}' {
			break
		}
		key, keySpan, err := p.parseStringLiteral()
		if err != nil {
			return jsonValue{}, err
		}
		p.skipWS()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return jsonValue{}, fmt.Errorf("expected ':' after key at offset %d", p.pos)
		}
		p.pos++
		val, err := p.parseValue()
		if err != nil {
			return jsonValue{}, err
		}
		member := jsonMember{
			key: key, keySpan: keySpan, value: val,
			entrySpan:   schema.Span{Start: keySpan.Start, End: val.span.End},
			commaBefore: lastComma,
		}
		p.skipWS()
		lastComma = nil
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			cs := schema.Span{Start: p.pos, End: p.pos + 1}
			member.commaAfter = &cs
			lastComma = &cs
			p.pos++
			p.skipWS()
		}
		obj.members = append(obj.members, member)
	}
	if p.pos >= len(p.src) || p.src[p.pos] != '}' {
		return jsonValue{}, fmt.Errorf("unterminated object")
	}
	p.pos++
	obj.span = schema.Span{Start: start, End: p.pos}
	return obj, nil
}

func (p *jsonParser) parseArray() (jsonValue, error) {
	start := p.pos
	p.pos++ // [
	arr := jsonValue{kind: jArray}
	p.skipWS()
	var lastComma *schema.Span
	for p.pos < len(p.src) && p.src[p.pos] != ']' {
		val, err := p.parseValue()
		if err != nil {
			return jsonValue{}, err
		}
		el := jsonElement{value: val, commaBefore: lastComma}
		p.skipWS()
		lastComma = nil
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			cs := schema.Span{Start: p.pos, End: p.pos + 1}
			el.commaAfter = &cs
			lastComma = &cs
			p.pos++
			p.skipWS()
		}
		arr.elements = append(arr.elements, el)
	}
	if p.pos >= len(p.src) || p.src[p.pos] != ']' {
		return jsonValue{}, fmt.Errorf("unterminated array")
	}
	p.pos++
	arr.span = schema.Span{Start: start, End: p.pos}
	return arr, nil
}

// lineIndent returns the run of leading spaces/tabs on the line containing
// offset, used to match a document's existing indentation style.
func lineIndent(source []byte, offset int) string {
	lineStart := offset
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	end := lineStart
	for end < offset && (source[end] == ' ' || source[end] == '\t') {
		end++
	}
	return string(source[lineStart:end])
}

type jsonResolver struct{}

func (jsonResolver) resolve(source []byte, segs []Segment, createMissing bool) (Resolution, error) {
	root, cur, err := jsonWalk(source, segs, createMissing)
	if err != nil {
		return Resolution{}, err
	}
	_ = root
	return cur, nil
}

// jsonWalk parses source and walks segs, returning the resolved value's
// span/type, or an insertion-point Resolution when the final segment is a
// missing map key and createMissing is set.
func jsonWalk(source []byte, segs []Segment, createMissing bool) (jsonValue, Resolution, error) {
	p := &jsonParser{src: source}
	root, err := p.parseValue()
	if err != nil {
		return jsonValue{}, Resolution{}, invalidRequest("malformed JSON: %v", err)
	}

	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.IsIndex {
			if cur.kind != jArray {
				return jsonValue{}, Resolution{}, invalidRequest("segment %d expects an array, found %s", i, cur.valueType())
			}
			if seg.Index < 0 || seg.Index >= len(cur.elements) {
				return jsonValue{}, Resolution{}, targetMissing("array index %d out of range (len %d)", seg.Index, len(cur.elements))
			}
			cur = cur.elements[seg.Index].value
			continue
		}

		if cur.kind != jObject {
			return jsonValue{}, Resolution{}, invalidRequest("segment %d expects an object, found %s", i, cur.valueType())
		}
		found := false
		for _, m := range cur.members {
			if m.key == seg.Key {
				cur = m.value
				found = true
				break
			}
		}
		if !found {
			if last && createMissing {
				return cur, jsonInsertionPoint(source, cur), nil
			}
			return jsonValue{}, Resolution{}, targetMissing("key %q not found", seg.Key)
		}
	}

	return cur, Resolution{Span: cur.span, Type: cur.valueType()}, nil
}

func jsonInsertionPoint(source []byte, obj jsonValue) Resolution {
	var insertAt int
	indent := "  "
	if len(obj.members) > 0 {
		insertAt = obj.members[len(obj.members)-1].entrySpan.End
		indent = lineIndent(source, obj.members[len(obj.members)-1].entrySpan.Start)
	} else {
		insertAt = obj.span.Start + 1
	}
	return Resolution{
		Span:      schema.Span{Start: insertAt, End: insertAt},
		Type:      TypeObject,
		Insertion: true,
		Indent:    indent,
	}
}

// MutationPlan is a single replacement to apply to a document's source
// bytes, already accounting for format-specific punctuation (commas,
// surrounding whitespace, key quoting).
type MutationPlan struct {
	Span        schema.Span
	Replacement []byte
}

func jsonPlanSet(source []byte, segs []Segment, newText string) (MutationPlan, error) {
	_, res, err := jsonWalk(source, segs, true)
	if err != nil {
		return MutationPlan{}, err
	}
	last := segs[len(segs)-1]
	if res.Insertion {
		var b strings.Builder
		if _, hasMembers := hasObjectMembers(source, segs[:len(segs)-1]); hasMembers {
			b.WriteString(",\n")
		} else {
			b.WriteString("\n")
		}
		b.WriteString(res.Indent)
		fmt.Fprintf(&b, "%q: %s", last.Key, newText)
		return MutationPlan{Span: res.Span, Replacement: []byte(b.String())}, nil
	}
	return MutationPlan{Span: res.Span, Replacement: []byte(newText)}, nil
}

// hasObjectMembers re-resolves the parent object to check whether it
// already has members, used to decide whether a new member needs a
// leading comma.
func hasObjectMembers(source []byte, parentSegs []Segment) (jsonValue, bool) {
	if len(parentSegs) == 0 {
		p := &jsonParser{src: source}
		root, err := p.parseValue()
		if err != nil {
			return jsonValue{}, false
		}
		return root, len(root.members) > 0
	}
	v, _, err := jsonWalk(source, parentSegs, false)
	if err != nil {
		return jsonValue{}, false
	}
	return v, len(v.members) > 0
}

func jsonPlanAppend(source []byte, segs []Segment, newElementText string) (MutationPlan, error) {
	v, _, err := jsonWalk(source, segs, false)
	if err != nil {
		return MutationPlan{}, err
	}
	if v.kind != jArray {
		return MutationPlan{}, invalidRequest("append target is not an array (found %s)", v.valueType())
	}

	var insertAt int
	indent := "  "
	var prefix string
	if len(v.elements) > 0 {
		last := v.elements[len(v.elements)-1]
		insertAt = last.value.span.End
		indent = lineIndent(source, last.value.span.Start)
		prefix = ",\n" + indent
	} else {
		insertAt = v.span.Start + 1
		prefix = "\n" + indent
	}
	return MutationPlan{
		Span:        schema.Span{Start: insertAt, End: insertAt},
		Replacement: []byte(prefix + newElementText),
	}, nil
}

func jsonPlanDelete(source []byte, segs []Segment) (MutationPlan, error) {
	parentSegs, lastSeg := segs[:len(segs)-1], segs[len(segs)-1]
	parent, _, err := jsonWalk(source, parentSegs, false)
	if err != nil {
		return MutationPlan{}, err
	}

	if lastSeg.IsIndex {
		if parent.kind != jArray {
			return MutationPlan{}, invalidRequest("delete target's parent is not an array")
		}
		if lastSeg.Index < 0 || lastSeg.Index >= len(parent.elements) {
			return MutationPlan{}, targetMissing("array index %d out of range", lastSeg.Index)
		}
		el := parent.elements[lastSeg.Index]
		span := el.value.span
		if el.commaAfter != nil {
			span = schema.Span{Start: span.Start, End: el.commaAfter.End}
		} else if el.commaBefore != nil {
			span = schema.Span{Start: el.commaBefore.Start, End: span.End}
		}
		return MutationPlan{Span: span, Replacement: nil}, nil
	}

	if parent.kind != jObject {
		return MutationPlan{}, invalidRequest("delete target's parent is not an object")
	}
	for _, m := range parent.members {
		if m.key != lastSeg.Key {
			continue
		}
		span := m.entrySpan
		if m.commaAfter != nil {
			span = schema.Span{Start: span.Start, End: m.commaAfter.End}
		} else if m.commaBefore != nil {
			span = schema.Span{Start: m.commaBefore.Start, End: span.End}
		}
		return MutationPlan{Span: span, Replacement: nil}, nil
	}
	return MutationPlan{}, targetMissing("key %q not found", lastSeg.Key)
}
