package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMessages(t *testing.T, raw string) []interface{} {
	t.Helper()
	var messages []interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &messages))
	return messages
}

func TestExtractPrompt(t *testing.T) {
	tests := []struct {
		name     string
		messages string
		want     string
	}{
		{
			name:     "plain string",
			messages: `[{"role":"user","content":"hello"}]`,
			want:     "hello",
		},
		{
			name:     "latest user message wins",
			messages: `[{"role":"user","content":"first"},{"role":"assistant","content":"reply"},{"role":"user","content":"second"}]`,
			want:     "second",
		},
		{
			name:     "skips trailing assistant",
			messages: `[{"role":"user","content":"question"},{"role":"assistant","content":"answer"}]`,
			want:     "question",
		},
		{
			name:     "structured parts joined by spaces",
			messages: `[{"role":"user","content":[{"type":"text","text":"a"},{"type":"image","source":{}},{"type":"text","text":"b"}]}]`,
			want:     "a b",
		},
		{
			name:     "no user message",
			messages: `[{"role":"system","content":"be nice"},{"role":"assistant","content":"hi"}]`,
			want:     "",
		},
		{
			name:     "structured without text",
			messages: `[{"role":"user","content":[{"type":"image","source":{}}]}]`,
			want:     "",
		},
		{
			name:     "non text content",
			messages: `[{"role":"user","content":42}]`,
			want:     "",
		},
		{
			name:     "ignores malformed entries",
			messages: `["junk",{"role":"user","content":"ok"},7]`,
			want:     "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPrompt(decodeMessages(t, tt.messages)))
		})
	}
}

func TestRequestModel(t *testing.T) {
	assert.Equal(t, DefaultModel, requestModel(map[string]interface{}{}))
	assert.Equal(t, DefaultModel, requestModel(map[string]interface{}{"model": "  "}))
	assert.Equal(t, DefaultModel, requestModel(map[string]interface{}{"model": 3}))
	assert.Equal(t, "claude-sonnet-4", requestModel(map[string]interface{}{"model": "claude-sonnet-4"}))
}
