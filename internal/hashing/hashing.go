// Package hashing computes the content-addressed hashes and line anchors
// that back every precondition in the engine. A single algorithm, blake3,
// is used throughout; the only externally visible lengths are a small
// set of canonical truncations.
package hashing

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

const (
	// IdentityHexLen is the length of a node identity / expected-old-hash /
	// short file hash, in hex characters.
	IdentityHexLen = 16
	// AnchorHexLen is the length of a line anchor hash, in hex characters.
	AnchorHexLen = 12
	// FileHashHexLen is the length of a full file hash, in hex characters.
	FileHashHexLen = 64
)

func sumHex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func truncate(full string, n int) string {
	if len(full) <= n {
		return full
	}
	return full[:n]
}

// FileHash returns the full 64-hex blake3 digest of a file's bytes.
func FileHash(contents []byte) string {
	return truncate(sumHex(contents), FileHashHexLen)
}

// ShortFileHash returns the first 16 hex characters of FileHash.
func ShortFileHash(contents []byte) string {
	return truncate(sumHex(contents), IdentityHexLen)
}

// NodeIdentity computes the position-independent identity of a structural
// node: blake3(kind \x00 name \x00 bytes[start:end]), truncated to 16 hex.
//
// Identity only depends on kind, name, and text — two textually identical
// nodes of the same kind/name share an identity regardless of where in the
// file (or in which file) they live.
func NodeIdentity(kind, name string, text []byte) string {
	buf := make([]byte, 0, len(kind)+len(name)+len(text)+2)
	buf = append(buf, kind...)
	buf = append(buf, 0x00)
	buf = append(buf, name...)
	buf = append(buf, 0x00)
	buf = append(buf, text...)
	return truncate(sumHex(buf), IdentityHexLen)
}

// ExpectedOldHash computes a node's content hash: blake3(text), truncated
// to 16 hex. It changes whenever the node's text changes, independent of
// kind and name.
func ExpectedOldHash(text []byte) string {
	return truncate(sumHex(text), IdentityHexLen)
}

// LineAnchorHash hashes a single line's text, excluding its terminating
// newline, truncated to 12 hex. A trailing \r is stripped first so anchors
// are CRLF-tolerant.
func LineAnchorHash(line []byte) string {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return truncate(sumHex(line), AnchorHexLen)
}

// SplitLines splits file contents into lines on \n, without the
// terminating newline. The final element is the (possibly empty) tail
// after the last newline; callers that want exactly the newline-terminated
// lines should ignore a trailing empty tail.
func SplitLines(contents []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range contents {
		if b == '\n' {
			lines = append(lines, contents[start:i])
			start = i + 1
		}
	}
	lines = append(lines, contents[start:])
	return lines
}
