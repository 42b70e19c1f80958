package configpath

import (
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/identedit/identedit/internal/schema"
)

// TOML support is intentionally a subset: single-line `key = value` and
// dotted-key assignments under `[table]` headers, plus single-line
// inline arrays. Multi-line arrays and array-of-tables (`[[...]]`) are
// rejected with invalid_request. An inline table is one opaque object
// value: it can be replaced or deleted whole, but the keys inside it are
// not resolved. go-toml/v2's stable decode API gives no source
// positions, so this package only uses it to validate that a document
// parses as well-formed TOML before a private line scanner locates spans.

type tomlEntry struct {
	keyPath  []string
	line     int
	lineSpan schema.Span // full line, including key, '=', value, trailing newline excluded
	valSpan  schema.Span
}

type tomlResolver struct{}

func (tomlResolver) resolve(source []byte, segs []Segment, createMissing bool) (Resolution, error) {
	if err := validateTOML(source); err != nil {
		return Resolution{}, err
	}
	entries, err := scanTOML(source)
	if err != nil {
		return Resolution{}, err
	}

	keySegs, idxSeg, hasIdx := splitTrailingIndex(segs)
	entry := findTOMLEntry(entries, keySegs)
	if entry == nil {
		if !hasIdx && createMissing {
			return tomlInsertionPoint(source, keySegs), nil
		}
		return Resolution{}, targetMissing("key %q not found", strings.Join(keySegs, "."))
	}

	if !hasIdx {
		return Resolution{Span: entry.valSpan, Type: tomlValueType(source, entry.valSpan)}, nil
	}

	elems, err := parseInlineArray(source, entry.valSpan)
	if err != nil {
		return Resolution{}, err
	}
	if idxSeg < 0 || idxSeg >= len(elems) {
		return Resolution{}, targetMissing("array index %d out of range (len %d)", idxSeg, len(elems))
	}
	return Resolution{Span: elems[idxSeg], Type: tomlValueType(source, elems[idxSeg])}, nil
}

func splitTrailingIndex(segs []Segment) ([]string, int, bool) {
	if len(segs) == 0 {
		return nil, 0, false
	}
	last := segs[len(segs)-1]
	if !last.IsIndex {
		keys := make([]string, 0, len(segs))
		for _, s := range segs {
			keys = append(keys, s.Key)
		}
		return keys, 0, false
	}
	keys := make([]string, 0, len(segs)-1)
	for _, s := range segs[:len(segs)-1] {
		keys = append(keys, s.Key)
	}
	return keys, last.Index, true
}

func validateTOML(source []byte) error {
	var doc map[string]any
	if err := toml.Unmarshal(source, &doc); err != nil {
		return invalidRequest("malformed TOML: %v", err)
	}
	return nil
}

func scanTOML(source []byte) ([]tomlEntry, error) {
	var entries []tomlEntry
	var table []string

	lineStart := 0
	lineNo := 0
	for lineStart <= len(source) {
		lineNo++
		nl := indexByte(source[lineStart:], '\n')
		var lineEnd int
		if nl < 0 {
			lineEnd = len(source)
		} else {
			lineEnd = lineStart + nl
		}
		raw := source[lineStart:lineEnd]
		trimmed := strings.TrimSpace(string(stripTOMLComment(raw)))

		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "[["):
			return nil, invalidRequest("array-of-tables is not supported by this TOML subset")
		case strings.HasPrefix(trimmed, "["):
			name := strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
			table = splitDotted(name)
		default:
			eq := findTopLevelEquals(trimmed)
			if eq >= 0 {
				keyPart := strings.TrimSpace(trimmed[:eq])
				keyOffset := bytesIndexOf(raw, keyPart)
				valStr := strings.TrimSpace(trimmed[eq+1:])
				if strings.HasPrefix(valStr, "[") && !strings.HasSuffix(valStr, "]") {
					return nil, invalidRequest("multi-line arrays are not supported by this TOML subset")
				}
				valStart := bytesIndexOfFrom(raw, valStr, keyOffset+len(keyPart))
				entries = append(entries, tomlEntry{
					keyPath:  append(append([]string{}, table...), splitDotted(keyPart)...),
					line:     lineNo,
					lineSpan: schema.Span{Start: lineStart, End: lineEnd},
					valSpan:  schema.Span{Start: lineStart + valStart, End: lineStart + valStart + len(valStr)},
				})
			}
		}

		if nl < 0 {
			break
		}
		lineStart = lineEnd + 1
	}
	return entries, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func bytesIndexOf(b []byte, s string) int {
	idx := strings.Index(string(b), s)
	if idx < 0 {
		return 0
	}
	return idx
}

func bytesIndexOfFrom(b []byte, s string, from int) int {
	if from < 0 || from > len(b) {
		from = 0
	}
	idx := strings.Index(string(b[from:]), s)
	if idx < 0 {
		return from
	}
	return from + idx
}

// stripTOMLComment removes a trailing `# ...` comment that is not inside a
// quoted string, returning the line with the comment (and nothing after
// it) removed.
func stripTOMLComment(line []byte) []byte {
	inSingle, inDouble := false, false
	for i, c := range line {
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '#' && !inSingle && !inDouble:
			return line[:i]
		}
	}
	return line
}

// findTopLevelEquals finds the first '=' not nested inside brackets or
// quotes (so dotted/bracket keys and inline-array values parse correctly).
func findTopLevelEquals(line string) int {
	depth := 0
	inSingle, inDouble := false, false
	for i, c := range line {
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
			continue
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		case c == '=' && depth == 0:
			return i
		}
	}
	return -1
}

func splitDotted(s string) []string {
	parts := strings.Split(s, ".")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func findTOMLEntry(entries []tomlEntry, keyPath []string) *tomlEntry {
	for i := range entries {
		if equalPaths(entries[i].keyPath, keyPath) {
			return &entries[i]
		}
	}
	return nil
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tomlValueType(source []byte, span schema.Span) ValueType {
	text := strings.TrimSpace(string(source[span.Start:span.End]))
	switch {
	case strings.HasPrefix(text, "["):
		return TypeArray
	case strings.HasPrefix(text, "{"):
		return TypeObject
	case strings.HasPrefix(text, "\"") || strings.HasPrefix(text, "'"):
		return TypeString
	case text == "true" || text == "false":
		return TypeBool
	default:
		return TypeNumber
	}
}

// parseInlineArray splits a single-line `[a, b, c]` inline array into
// element spans, respecting nested brackets/quotes one level deep.
func parseInlineArray(source []byte, span schema.Span) ([]schema.Span, error) {
	text := source[span.Start:span.End]
	trimmed := strings.TrimSpace(string(text))
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, invalidRequest("value is not an inline array")
	}
	inner := trimmed[1 : len(trimmed)-1]
	innerStart := span.Start + strings.Index(string(text), "[") + 1

	var spans []schema.Span
	depth := 0
	inSingle, inDouble := false, false
	elemStart := 0
	for i, c := range inner {
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
			continue
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			spans = append(spans, trimmedSpan(inner, elemStart, i, innerStart))
			elemStart = i + 1
		}
	}
	if strings.TrimSpace(inner[elemStart:]) != "" {
		spans = append(spans, trimmedSpan(inner, elemStart, len(inner), innerStart))
	}
	return spans, nil
}

func trimmedSpan(s string, start, end, base int) schema.Span {
	seg := s[start:end]
	lead := len(seg) - len(strings.TrimLeft(seg, " \t\n"))
	trail := len(seg) - len(strings.TrimRight(seg, " \t\n"))
	return schema.Span{Start: base + start + lead, End: base + end - trail}
}

func tomlInsertionPoint(source []byte, keyPath []string) Resolution {
	// Insert at end of file (or end of the owning table, if one exists),
	// as a new "key = value" line.
	tablePath := keyPath[:len(keyPath)-1]
	insertAt := len(source)
	if len(tablePath) == 0 {
		return Resolution{Span: schema.Span{Start: insertAt, End: insertAt}, Type: TypeObject, Insertion: true}
	}
	// Find the table header's line end; insert right after it, or after
	// its last existing key if any were scanned.
	entries, err := scanTOML(source)
	if err == nil {
		for i := len(entries) - 1; i >= 0; i-- {
			if len(entries[i].keyPath) == len(tablePath)+1 && equalPaths(entries[i].keyPath[:len(tablePath)], tablePath) {
				// lineSpan.End is the offset of that line's '\n' (or EOF);
				// the new line starts just past it.
				at, sep := entries[i].lineSpan.End, "\n"
				if at < len(source) {
					at, sep = at+1, ""
				}
				return Resolution{Span: schema.Span{Start: at, End: at}, Type: TypeObject, Insertion: true, Indent: sep}
			}
		}
	}
	header := "\n[" + strings.Join(tablePath, ".") + "]\n"
	return Resolution{Span: schema.Span{Start: insertAt, End: insertAt}, Type: TypeObject, Insertion: true, Indent: header}
}

func tomlPlanSet(source []byte, segs []Segment, newText string) (MutationPlan, error) {
	keySegs, _, hasIdx := splitTrailingIndex(segs)
	if hasIdx {
		res, err := (tomlResolver{}).resolve(source, segs, false)
		if err != nil {
			return MutationPlan{}, err
		}
		return MutationPlan{Span: res.Span, Replacement: []byte(newText)}, nil
	}
	res, err := (tomlResolver{}).resolve(source, segs, true)
	if err != nil {
		return MutationPlan{}, err
	}
	if res.Insertion {
		key := keySegs[len(keySegs)-1]
		line := res.Indent + key + " = " + newText + "\n"
		return MutationPlan{Span: res.Span, Replacement: []byte(line)}, nil
	}
	return MutationPlan{Span: res.Span, Replacement: []byte(newText)}, nil
}

func tomlPlanAppend(source []byte, segs []Segment, newElementText string) (MutationPlan, error) {
	keySegs, _, _ := splitTrailingIndex(segs)
	entries, err := scanTOML(source)
	if err != nil {
		return MutationPlan{}, err
	}
	entry := findTOMLEntry(entries, keySegs)
	if entry == nil {
		return MutationPlan{}, targetMissing("key %q not found", strings.Join(keySegs, "."))
	}
	if tomlValueType(source, entry.valSpan) != TypeArray {
		return MutationPlan{}, invalidRequest("append target is not an array")
	}
	elems, err := parseInlineArray(source, entry.valSpan)
	if err != nil {
		return MutationPlan{}, err
	}
	closeBracket := entry.valSpan.End - 1
	for closeBracket > entry.valSpan.Start && source[closeBracket] != ']' {
		closeBracket--
	}
	prefix := ""
	if len(elems) > 0 {
		prefix = ", "
	}
	return MutationPlan{
		Span:        schema.Span{Start: closeBracket, End: closeBracket},
		Replacement: []byte(prefix + newElementText),
	}, nil
}

func tomlPlanDelete(source []byte, segs []Segment) (MutationPlan, error) {
	keySegs, idxSeg, hasIdx := splitTrailingIndex(segs)
	entries, err := scanTOML(source)
	if err != nil {
		return MutationPlan{}, err
	}

	if hasIdx {
		parentKeys := keySegs
		entry := findTOMLEntry(entries, parentKeys)
		if entry == nil {
			return MutationPlan{}, targetMissing("key %q not found", strings.Join(parentKeys, "."))
		}
		elems, err := parseInlineArray(source, entry.valSpan)
		if err != nil {
			return MutationPlan{}, err
		}
		if idxSeg < 0 || idxSeg >= len(elems) {
			return MutationPlan{}, targetMissing("array index %d out of range", idxSeg)
		}
		span := elems[idxSeg]
		if idxSeg+1 < len(elems) {
			span = schema.Span{Start: span.Start, End: elems[idxSeg+1].Start}
		} else if idxSeg > 0 {
			span = schema.Span{Start: elems[idxSeg-1].End, End: span.End}
		}
		return MutationPlan{Span: span, Replacement: nil}, nil
	}

	entry := findTOMLEntry(entries, keySegs)
	if entry == nil {
		return MutationPlan{}, targetMissing("key %q not found", strings.Join(keySegs, "."))
	}
	start := entry.lineSpan.Start
	end := entry.lineSpan.End
	if end < len(source) && source[end] == '\n' {
		end++
	}
	return MutationPlan{Span: schema.Span{Start: start, End: end}, Replacement: nil}, nil
}
