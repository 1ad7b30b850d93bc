package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dvcrn/amazonq-proxy/internal/amazonq"
	"github.com/dvcrn/amazonq-proxy/internal/metrics"
	"github.com/dvcrn/amazonq-proxy/internal/stream"
	"github.com/google/uuid"
)

func (s *Server) chatCompletionsHandler(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, stream.FormatOpenAI)
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, stream.FormatAnthropic)
}

// handleChat serves both public chat protocols. Only the response grammar
// differs between them.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, format stream.Format) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r, http.MethodPost)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read request body")
		s.badRequest(w, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		s.badRequest(w, "Invalid JSON in request body")
		return
	}

	messages, _ := body["messages"].([]interface{})
	if len(messages) == 0 {
		s.badRequest(w, "messages must be a non-empty array")
		return
	}

	wantStream := ResolveStreamPreference(body, format, r)
	model := requestModel(body)
	prompt := ExtractPrompt(messages)
	if prompt == "" {
		s.badRequest(w, "No user message with text content found")
		return
	}

	req := amazonq.Request{
		Prompt:         prompt,
		ConversationID: uuid.NewString(),
		ModelID:        SelectModelID(model),
		ProfileARN:     s.creds.ProfileARN(r.Context()),
	}

	ev := s.logger.Info().
		Str("format", string(format)).
		Str("model", model).
		Str("upstream_model", req.ModelID).
		Bool("stream", wantStream).
		Str("conversation_id", req.ConversationID).
		Int("prompt_length", len(prompt))
	if s.cfg.Logging.LogRequests {
		ev = ev.Str("prompt", s.preview(prompt))
	}
	ev.Msg("Forwarding chat request to Amazon Q")

	resp, err := s.upstream.Generate(r.Context(), req)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}

	requestID := ""
	if format == stream.FormatAnthropic {
		requestID = stream.NewRequestID()
		w.Header().Set("anthropic-version", s.cfg.Anthropic.Version)
		w.Header().Set("x-request-id", requestID)
	}

	if wantStream {
		s.streamResponse(w, r, resp, format, model)
		return
	}

	defer resp.Body.Close()
	upstreamBody, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read upstream response body")
		s.writeError(w, http.StatusServiceUnavailable, apiError{
			Message: "Failed to read upstream response: " + err.Error(),
			Type:    errTypeAmazonQ,
			Code:    "service_unavailable",
		})
		return
	}

	text := stream.CollectText(upstreamBody)
	ev = s.logger.Info().
		Str("conversation_id", req.ConversationID).
		Str("request_id", requestID).
		Int("response_length", len(text))
	if s.cfg.Logging.LogResponses {
		ev = ev.Str("response", s.preview(text))
	}
	ev.Msg("✅ Collected upstream reply")

	var out interface{}
	if format == stream.FormatAnthropic {
		out = stream.NewAnthropicMessage(model, text)
	} else {
		out = stream.NewChatCompletion(model, req.ConversationID, text, s.now())
	}

	payload, err := stream.MarshalJSON(out)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) streamResponse(w http.ResponseWriter, r *http.Request, resp *http.Response, format stream.Format, model string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		resp.Body.Close()
		s.logger.Error().Msg("Streaming unsupported by response writer")
		s.writeError(w, http.StatusInternalServerError, apiError{
			Message: "Streaming unsupported",
			Type:    errTypeServer,
			Code:    "internal_error",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	sess := stream.NewSession(sseFlushWriter{w: w, f: flusher}, format, model)
	err := stream.Pipe(r.Context(), resp.Body, sess, stream.PipeOptions{
		ChunkSize:     s.cfg.Stream.ChunkSize,
		BufferMaxSize: s.cfg.Stream.BufferMaxSize,
		QueueSize:     s.cfg.Stream.QueueSize,
		Logger:        &s.logger,
	})

	switch {
	case err == nil:
		ev := s.logger.Info().
			Str("format", string(format)).
			Str("message_id", sess.ID()).
			Int("response_length", len(sess.Text()))
		if s.cfg.Logging.LogResponses {
			ev = ev.Str("response", s.preview(sess.Text()))
		}
		ev.Msg("✅ Stream completed")
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		s.logger.Info().Str("message_id", sess.ID()).Msg("Client disconnected mid-stream")
	default:
		s.logger.Warn().Err(err).Str("message_id", sess.ID()).Str("state", sess.State().String()).Msg("Stream ended with error")
	}
}

// preview bounds logged prompt and reply text to the configured length.
func (s *Server) preview(text string) string {
	limit := s.cfg.Logging.MaxLogLength
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return strings.ToValidUTF8(text[:limit], "") + "..."
}
