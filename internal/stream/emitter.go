package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Format selects the public streaming grammar.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
)

// State is a session phase.
type State int

const (
	StateInit State = iota
	StateOpened
	StateEmitting
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateOpened:
		return "OPENED"
	case StateEmitting:
		return "EMITTING"
	case StateClosed:
		return "CLOSED"
	case StateErrored:
		return "ERRORED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when an event does not apply to the
// current state. Nothing is written in that case.
var ErrInvalidTransition = errors.New("stream: invalid session transition")

type streamDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

type messageStartEvent struct {
	Type    string           `json:"type"`
	Message AnthropicMessage `json:"message"`
}

type contentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

type textDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type contentBlockDeltaEvent struct {
	Type  string    `json:"type"`
	Index int       `json:"index"`
	Delta textDelta `json:"delta"`
}

type contentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type messageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type outputUsage struct {
	OutputTokens int `json:"output_tokens"`
}

type messageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta messageDelta `json:"delta"`
	Usage outputUsage  `json:"usage"`
}

type messageStopEvent struct {
	Type    string           `json:"type"`
	Message AnthropicMessage `json:"message"`
}

type streamErrorBody struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

type openAIErrorFrame struct {
	Error streamErrorBody `json:"error"`
}

type anthropicErrorFrame struct {
	Type  string          `json:"type"`
	Error streamErrorBody `json:"error"`
}

// Session re-synthesizes one response stream in the caller's grammar. It is
// owned by a single request and is not safe for concurrent use.
type Session struct {
	w       io.Writer
	format  Format
	model   string
	id      string
	created int64
	state   State
	text    strings.Builder
}

// NewSession creates a session writing frames to w.
func NewSession(w io.Writer, format Format, model string) *Session {
	s := &Session{
		w:       w,
		format:  format,
		model:   model,
		created: time.Now().Unix(),
	}
	if format == FormatAnthropic {
		s.id = NewMessageID()
	} else {
		s.id = "chatcmpl-" + hexID()
	}
	return s
}

func (s *Session) State() State   { return s.state }
func (s *Session) Format() Format { return s.format }
func (s *Session) ID() string     { return s.id }

// Text returns every fragment emitted so far, concatenated.
func (s *Session) Text() string { return s.text.String() }

// Open announces the response: message_start and content_block_start for
// Anthropic, a role delta for OpenAI.
func (s *Session) Open() error {
	if s.state != StateInit {
		return s.invalid("open")
	}
	var frames []byte
	var err error
	if s.format == FormatAnthropic {
		msg := AnthropicMessage{
			ID:      s.id,
			Type:    "message",
			Role:    "assistant",
			Content: []ContentBlock{},
			Model:   s.model,
		}
		frames, err = s.frames(
			event{"message_start", messageStartEvent{Type: "message_start", Message: msg}},
			event{"content_block_start", contentBlockStartEvent{
				Type:         "content_block_start",
				ContentBlock: ContentBlock{Type: "text"},
			}},
		)
	} else {
		empty := ""
		frames, err = s.frames(event{"", s.chunk(streamDelta{Role: "assistant", Content: &empty}, nil)})
	}
	if err != nil {
		return err
	}
	return s.emit(frames, StateOpened)
}

// Fragment forwards one piece of assistant text.
func (s *Session) Fragment(text string) error {
	if s.state != StateOpened && s.state != StateEmitting {
		return s.invalid("fragment")
	}
	var frames []byte
	var err error
	if s.format == FormatAnthropic {
		frames, err = s.frames(event{"content_block_delta", contentBlockDeltaEvent{
			Type:  "content_block_delta",
			Delta: textDelta{Type: "text_delta", Text: text},
		}})
	} else {
		frames, err = s.frames(event{"", s.chunk(streamDelta{Content: &text}, nil)})
	}
	if err != nil {
		return err
	}
	s.text.WriteString(text)
	return s.emit(frames, StateEmitting)
}

// Close ends the response after upstream exhaustion. A session that received
// no fragments may close straight from OPENED.
func (s *Session) Close() error {
	if s.state != StateOpened && s.state != StateEmitting {
		return s.invalid("close")
	}
	var frames []byte
	var err error
	if s.format == FormatAnthropic {
		frames, err = s.frames(
			event{"content_block_stop", contentBlockStopEvent{Type: "content_block_stop"}},
			event{"message_delta", messageDeltaEvent{
				Type:  "message_delta",
				Delta: messageDelta{StopReason: stopEndTurn},
			}},
			event{"message_stop", messageStopEvent{
				Type:    "message_stop",
				Message: *completedMessage(s.id, s.model, s.text.String()),
			}},
		)
	} else {
		stop := "stop"
		frames, err = s.frames(event{"", s.chunk(streamDelta{}, &stop)})
		frames = append(frames, "data: [DONE]\n\n"...)
	}
	if err != nil {
		return err
	}
	return s.emit(frames, StateClosed)
}

// Fail writes one best-effort inline error event and moves to ERRORED. The
// HTTP status has already been sent, so this is the only way to report it.
func (s *Session) Fail(cause error) error {
	if s.state == StateClosed || s.state == StateErrored {
		return s.invalid("fail")
	}
	message := "stream error"
	if cause != nil && cause.Error() != "" {
		message = cause.Error()
	}
	var frames []byte
	var err error
	if s.format == FormatAnthropic {
		frames, err = s.frames(event{"error", anthropicErrorFrame{
			Type:  "error",
			Error: streamErrorBody{Type: "stream_error", Message: message},
		}})
	} else {
		frames, err = s.frames(event{"", openAIErrorFrame{
			Error: streamErrorBody{Type: "stream_error", Message: message},
		}})
	}
	s.state = StateErrored
	if err != nil {
		return err
	}
	_, err = s.w.Write(frames)
	return err
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, op, s.state)
}

// emit writes frames in one call so each transition flushes as a unit. A
// failed write means the client is gone; the session becomes ERRORED
// without attempting an error frame.
func (s *Session) emit(frames []byte, next State) error {
	if _, err := s.w.Write(frames); err != nil {
		s.state = StateErrored
		return fmt.Errorf("failed to write stream frame: %w", err)
	}
	s.state = next
	return nil
}

func (s *Session) chunk(delta streamDelta, finishReason *string) streamChunk {
	return streamChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []streamChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

// event is one frame; an empty name produces a bare data line.
type event struct {
	name    string
	payload interface{}
}

func (s *Session) frames(events ...event) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range events {
		data, err := MarshalJSON(ev.payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s frame: %w", s.format, err)
		}
		if ev.name != "" {
			buf.WriteString("event: ")
			buf.WriteString(ev.name)
			buf.WriteByte('\n')
		}
		buf.WriteString("data: ")
		buf.Write(data)
		buf.WriteString("\n\n")
	}
	return buf.Bytes(), nil
}

// MarshalJSON encodes v without HTML escaping so fragments reach the client
// byte for byte.
func MarshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
