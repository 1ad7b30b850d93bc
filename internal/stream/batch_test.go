package stream

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectTextConcatenatesFragments(t *testing.T) {
	raw := []byte("\x00\x00\x00:event-type\x07assistantResponseEvent{\"content\":\"Hel\"}\x00\x00{\"content\":\"lo\"}")
	assert.Equal(t, "Hello", CollectText(raw))
}

func TestCollectTextFallsBackToPrintableLines(t *testing.T) {
	raw := []byte("  first line  \n: comment\n\n second\n")
	assert.Equal(t, "first line\nsecond", CollectText(raw))
}

func TestCollectTextEmptyFragmentCountsAsFound(t *testing.T) {
	assert.Equal(t, "", CollectText([]byte(`noise {"content":""}`)))
}

func TestNewChatCompletion(t *testing.T) {
	now := time.Unix(1700000000, 0)
	resp := NewChatCompletion("claude-sonnet-4.5", "0123456789abcdef", "hello", now)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "chatcmpl-01234567",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "claude-sonnet-4.5",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 0, "completion_tokens": 0, "total_tokens": 0}
	}`, string(b))
}

func TestNewAnthropicMessage(t *testing.T) {
	msg := NewAnthropicMessage("claude-sonnet-4", "hi")

	assert.True(t, strings.HasPrefix(msg.ID, "msg_"))
	assert.Len(t, msg.ID, len("msg_")+32)

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "message", got["type"])
	assert.Equal(t, "assistant", got["role"])
	assert.Equal(t, "end_turn", got["stop_reason"])
	assert.Nil(t, got["stop_sequence"])
	assert.Equal(t, []interface{}{map[string]interface{}{"type": "text", "text": "hi"}}, got["content"])
}

func TestRequestID(t *testing.T) {
	id := NewRequestID()
	assert.True(t, strings.HasPrefix(id, "req_"))
	assert.NotContains(t, id, "-")
}
