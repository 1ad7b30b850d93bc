package stream

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CollectText drains every fragment from a fully buffered upstream reply.
// A reply without any content object falls back to its printable lines.
func CollectText(raw []byte) string {
	s := &Scanner{buf: raw}
	var (
		b     strings.Builder
		found bool
	)
	for {
		fragment, ok := s.Next()
		if !ok {
			break
		}
		found = true
		b.WriteString(fragment)
	}
	if found {
		return b.String()
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ":") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   ChatCompletionUsage    `json:"usage"`
}

// NewChatCompletion wraps text in the OpenAI non-streaming response shape.
// Token usage is not reported upstream and is always zero.
func NewChatCompletion(model, conversationID, text string, now time.Time) *ChatCompletionResponse {
	id := conversationID
	if len(id) > 8 {
		id = id[:8]
	}
	return &ChatCompletionResponse{
		ID:      "chatcmpl-" + id,
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []ChatCompletionChoice{
			{
				Index:        0,
				Message:      ChatMessage{Role: "assistant", Content: text},
				FinishReason: "stop",
			},
		},
	}
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type MessageUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicMessage is the Anthropic messages response object.
type AnthropicMessage struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        MessageUsage   `json:"usage"`
}

const stopEndTurn = "end_turn"

// NewAnthropicMessage wraps text in the Anthropic non-streaming response shape.
func NewAnthropicMessage(model, text string) *AnthropicMessage {
	return completedMessage(NewMessageID(), model, text)
}

func completedMessage(id, model, text string) *AnthropicMessage {
	stop := stopEndTurn
	return &AnthropicMessage{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Content:    []ContentBlock{{Type: "text", Text: text}},
		Model:      model,
		StopReason: &stop,
	}
}

// NewMessageID returns an Anthropic-style message id.
func NewMessageID() string {
	return "msg_" + hexID()
}

// NewRequestID returns the value of the x-request-id response header.
func NewRequestID() string {
	return "req_" + hexID()
}

func hexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
