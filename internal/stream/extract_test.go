package stream

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDrainsObjectsInOrder(t *testing.T) {
	buf := []byte(`junk:event{"content":"a"}\x00more bytes{"content":"b"}` + "\n" + `{"content":"c"}tail`)

	var got []string
	rest := buf
	for {
		obj, next, ok := Extract(rest, ContentMarker)
		if !ok {
			assert.Equal(t, rest, next, "rest must be unchanged when nothing is found")
			break
		}
		got = append(got, string(obj))
		rest = next
	}

	assert.Equal(t, []string{`{"content":"a"}`, `{"content":"b"}`, `{"content":"c"}`}, got)
	assert.Equal(t, "tail", string(rest))
}

func TestExtractNoMarker(t *testing.T) {
	buf := []byte(`{"other":"x"}`)
	obj, rest, ok := Extract(buf, ContentMarker)
	assert.False(t, ok)
	assert.Nil(t, obj)
	assert.Equal(t, buf, rest)
}

func TestExtractIncompleteObject(t *testing.T) {
	buf := []byte(`prefix{"content":"partial {`)
	_, rest, ok := Extract(buf, ContentMarker)
	assert.False(t, ok)
	assert.Equal(t, buf, rest)

	// Completing the object later yields it.
	buf = append(buf, []byte(`still"}`)...)
	obj, rest, ok := Extract(buf, ContentMarker)
	require.True(t, ok)
	assert.Equal(t, `{"content":"partial {still"}`, string(obj))
	assert.Empty(t, rest)
}

func TestExtractBracesAndEscapesInsideStrings(t *testing.T) {
	cases := []string{
		`{"content":"a } b { c"}`,
		`{"content":"quote \" } inside"}`,
		`{"content":"backslash \\"}`,
		`{"content":"backslash then brace \\}"}`,
		`{"content":"nested","meta":{"k":"}}}"}}`,
		`{"content":"unicode }"}`,
	}
	for _, tc := range cases {
		t.Run(tc, func(t *testing.T) {
			obj, rest, ok := Extract([]byte(tc+`{"content":"next"}`), ContentMarker)
			require.True(t, ok)
			assert.Equal(t, tc, string(obj))
			assert.Equal(t, `{"content":"next"}`, string(rest))

			var want, got map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tc), &want))
			require.NoError(t, json.Unmarshal(obj, &got))
			assert.Equal(t, want, got)
		})
	}
}

func TestScannerSkipsUnusableObjects(t *testing.T) {
	s := NewScanner(0)
	s.Write([]byte(`{"content":42}{"content":"ok"}{"content":"bad" x}{"content":"fine"}`))

	var got []string
	for {
		fragment, ok := s.Next()
		if !ok {
			break
		}
		got = append(got, fragment)
	}
	assert.Equal(t, []string{"ok", "fine"}, got)
}

func TestScannerAcrossWrites(t *testing.T) {
	s := NewScanner(0)
	payload := `:event-type{"content":"Hello, \"world\""}:other{"content":" again"}`

	var got []string
	for i := 0; i < len(payload); i += 3 {
		end := i + 3
		if end > len(payload) {
			end = len(payload)
		}
		s.Write([]byte(payload[i:end]))
		for {
			fragment, ok := s.Next()
			if !ok {
				break
			}
			got = append(got, fragment)
		}
	}
	assert.Equal(t, []string{`Hello, "world"`, " again"}, got)
}

func TestScannerTailRetention(t *testing.T) {
	s := NewScanner(32)
	assert.False(t, s.Write([]byte(`{"content":"`)))
	truncated := s.Write([]byte(strings.Repeat("x", 40) + `"}{"content":"kept"}`))
	assert.True(t, truncated)
	assert.Equal(t, 32, s.Buffered())

	fragment, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "kept", fragment)
	_, ok = s.Next()
	assert.False(t, ok)
}
