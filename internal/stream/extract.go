// Package stream translates the upstream's unframed reply into the public
// batch and streaming response formats.
package stream

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// ContentMarker opens every upstream object carrying assistant text.
const ContentMarker = `{"content":`

// Extract finds the first complete JSON object starting at marker. It returns
// the object and the unconsumed tail after it. When no marker is present, or
// the object is not closed yet, ok is false and rest is buf unchanged.
func Extract(buf []byte, marker string) (obj, rest []byte, ok bool) {
	start := bytes.Index(buf, []byte(marker))
	if start < 0 {
		return nil, buf, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buf); i++ {
		c := buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return buf[start : i+1], buf[i+1:], true
			}
		}
	}
	return nil, buf, false
}

// fragmentText decodes the content field of an extracted object.
func fragmentText(obj []byte) (string, bool) {
	if !gjson.ValidBytes(obj) {
		return "", false
	}
	v := gjson.GetBytes(obj, "content")
	if v.Type != gjson.String {
		return "", false
	}
	return v.String(), true
}

// Scanner accumulates upstream bytes and yields content fragments as soon as
// their enclosing object is complete.
type Scanner struct {
	buf     []byte
	maxSize int
}

// NewScanner returns a scanner whose buffer keeps at most maxSize bytes.
// maxSize <= 0 leaves the buffer unbounded.
func NewScanner(maxSize int) *Scanner {
	return &Scanner{maxSize: maxSize}
}

// Write appends p. If the buffer grows past its bound the oldest bytes are
// dropped and truncated is true; an object split across the cut is lost.
func (s *Scanner) Write(p []byte) (truncated bool) {
	s.buf = append(s.buf, p...)
	if s.maxSize > 0 && len(s.buf) > s.maxSize {
		s.buf = append([]byte(nil), s.buf[len(s.buf)-s.maxSize:]...)
		return true
	}
	return false
}

// Next returns the next fragment in arrival order. Objects that fail to parse
// or carry no string content are skipped. ok is false once no complete object
// remains; call again after the next Write.
func (s *Scanner) Next() (fragment string, ok bool) {
	for {
		obj, rest, found := Extract(s.buf, ContentMarker)
		if !found {
			return "", false
		}
		s.buf = rest
		if text, ok := fragmentText(obj); ok {
			return text, true
		}
	}
}

// Buffered reports how many bytes are waiting for more input.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}
