package configpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a dotted/bracket config path: either a map key
// or an array index.
type Segment struct {
	Key      string
	IsIndex  bool
	Index    int
}

// ParsePath parses "a.b[1].c" into its segments.
// Grammar: segment ('.' segment | '[' int ']')*, segment = unquoted key.
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segs []Segment
	i := 0
	n := len(path)
	expectKey := true

	for i < n {
		switch {
		case path[i] == '.':
			if expectKey {
				return nil, fmt.Errorf("unexpected '.' at offset %d", i)
			}
			i++
			expectKey = true
		case path[i] == '[':
			if expectKey {
				return nil, fmt.Errorf("expected a key before '[' at offset %d", i)
			}
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return nil, fmt.Errorf("unterminated '[' at offset %d", i)
			}
			idxStr := path[i+1 : i+j]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("invalid array index %q at offset %d", idxStr, i)
			}
			segs = append(segs, Segment{IsIndex: true, Index: idx})
			i += j + 1
			expectKey = false
		default:
			if !expectKey {
				return nil, fmt.Errorf("expected '.' or '[' at offset %d", i)
			}
			start := i
			for i < n && path[i] != '.' && path[i] != '[' {
				i++
			}
			key := path[start:i]
			if key == "" {
				return nil, fmt.Errorf("empty key segment at offset %d", start)
			}
			segs = append(segs, Segment{Key: key})
			expectKey = false
		}
	}

	if expectKey {
		return nil, fmt.Errorf("path ends with '.'")
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("path has no segments")
	}
	return segs, nil
}
