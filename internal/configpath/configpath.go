// Package configpath implements the Config Path Resolver (component C):
// resolving dotted/bracket paths against JSON, YAML, and TOML documents to
// a byte span of the referenced value in the original source.
package configpath

import (
	"github.com/identedit/identedit/internal/hashing"
	"github.com/identedit/identedit/internal/schema"
)

// Format names a supported config document format.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// FormatFromExtension maps a file extension to a Format, or ok=false.
func FormatFromExtension(ext string) (Format, bool) {
	switch ext {
	case ".json":
		return JSON, true
	case ".yaml", ".yml":
		return YAML, true
	case ".toml":
		return TOML, true
	default:
		return "", false
	}
}

// ValueType classifies the resolved value's shape, used to validate
// append (must be array) and the serializer's insertion strategy.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeNumber ValueType = "number"
	TypeBool   ValueType = "bool"
	TypeNull   ValueType = "null"
	TypeArray  ValueType = "array"
	TypeObject ValueType = "object"
)

// Resolution is the outcome of resolving a path against a document.
type Resolution struct {
	Span   schema.Span
	Type   ValueType
	// Insertion is true when the final segment names a map key that does
	// not yet exist and create_missing was set: Span is a zero-width
	// insertion point rather than an existing value's span.
	Insertion bool
	// Indent is the detected indentation to use when synthesizing a new
	// line/entry at Span (append, or insertion of a missing key).
	Indent string
}

// resolver is implemented once per format.
type resolver interface {
	resolve(source []byte, segs []Segment, createMissing bool) (Resolution, error)
}

// Resolve locates path inside source, parsed as format. It does not check
// a file hash: callers verify expected_file_hash with VerifyFileHash (the
// engine reports a mismatch as path_changed) — Resolve only returns the
// structural result.
func Resolve(source []byte, format Format, path string, createMissing bool) (Resolution, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return Resolution{}, invalidRequest("invalid path: %v", err)
	}

	var r resolver
	switch format {
	case JSON:
		r = jsonResolver{}
	case YAML:
		r = yamlResolver{}
	case TOML:
		r = tomlResolver{}
	default:
		return Resolution{}, invalidRequest("unsupported config format: %s", format)
	}
	return r.resolve(source, segs, createMissing)
}

// PlanSet computes the edit that sets path's value to newText (verbatim;
// quoting is the caller's responsibility), creating the final map key if
// it is missing.
func PlanSet(source []byte, format Format, path, newText string) (MutationPlan, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return MutationPlan{}, invalidRequest("invalid path: %v", err)
	}
	switch format {
	case JSON:
		return jsonPlanSet(source, segs, newText)
	case YAML:
		return yamlPlanSet(source, segs, newText)
	case TOML:
		return tomlPlanSet(source, segs, newText)
	default:
		return MutationPlan{}, invalidRequest("unsupported config format: %s", format)
	}
}

// PlanAppend computes the edit that splices newElementText into the array
// at path, preserving the document's surrounding indentation style.
func PlanAppend(source []byte, format Format, path, newElementText string) (MutationPlan, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return MutationPlan{}, invalidRequest("invalid path: %v", err)
	}
	switch format {
	case JSON:
		return jsonPlanAppend(source, segs, newElementText)
	case YAML:
		return yamlPlanAppend(source, segs, newElementText)
	case TOML:
		return tomlPlanAppend(source, segs, newElementText)
	default:
		return MutationPlan{}, invalidRequest("unsupported config format: %s", format)
	}
}

// PlanDelete computes the edit that removes path's key/value (or array
// element) and its minimal enclosing punctuation.
func PlanDelete(source []byte, format Format, path string) (MutationPlan, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return MutationPlan{}, invalidRequest("invalid path: %v", err)
	}
	if len(segs) == 0 {
		return MutationPlan{}, invalidRequest("path has no segments")
	}
	switch format {
	case JSON:
		return jsonPlanDelete(source, segs)
	case YAML:
		return yamlPlanDelete(source, segs)
	case TOML:
		return tomlPlanDelete(source, segs)
	default:
		return MutationPlan{}, invalidRequest("unsupported config format: %s", format)
	}
}

// VerifyFileHash reports whether source's current hash matches expected.
// expected == "" means no precondition was requested.
func VerifyFileHash(source []byte, expected string) bool {
	if expected == "" {
		return true
	}
	return hashing.FileHash(source) == expected
}
