package server

import (
	"mime"
	"net/http"
	"strings"

	"github.com/dvcrn/amazonq-proxy/internal/stream"
)

// Stream flag vocabulary, matched after trimming and lowercasing.
var (
	streamTrueTokens  = []string{"true", "1", "yes", "on", "sse", "stream", "delta"}
	streamFalseTokens = []string{"false", "0", "no", "off"}
)

// streamFlagObjectKeys are probed in order when the flag is an object.
var streamFlagObjectKeys = []string{"type", "mode", "format", "value", "enabled"}

// streamAliasFields are body fields consulted when "stream" is unresolved.
var streamAliasFields = []string{"response_mode", "responseMode", "response_format", "responseFormat"}

// streamingClientHints are lowercase fragments identifying clients that
// expect a streaming reply.
var streamingClientHints = []string{
	"claudecode",
	"claude code",
	"claude-code",
	"anthropic/ide",
	"anthropic-ide",
	"anthropic-client",
	"amazon q developer",
	"amazonq-ide",
}

// clientHintHeaders carry the client identity scanned for streamingClientHints.
var clientHintHeaders = []string{"User-Agent", "X-Client-App", "X-App-Name", "X-Request-Client"}

// normalizeStreamFlag maps a loosely typed flag to a boolean. ok is false
// when the value says nothing either way.
func normalizeStreamFlag(v interface{}) (value bool, ok bool) {
	switch flag := v.(type) {
	case nil:
		return false, false
	case bool:
		return flag, true
	case float64:
		return flag != 0, true
	case int:
		return flag != 0, true
	case string:
		token := strings.ToLower(strings.TrimSpace(flag))
		if token == "" {
			return false, false
		}
		for _, t := range streamTrueTokens {
			if token == t {
				return true, true
			}
		}
		for _, t := range streamFalseTokens {
			if token == t {
				return false, true
			}
		}
		return false, false
	case map[string]interface{}:
		for _, key := range streamFlagObjectKeys {
			if sub, present := flag[key]; present {
				if value, ok := normalizeStreamFlag(sub); ok {
					return value, true
				}
			}
		}
		return false, false
	default:
		return false, false
	}
}

// ResolveStreamPreference decides between a streaming and a batch reply,
// stopping at the first signal that resolves: the body "stream" field, the
// "stream" query parameter, response mode/format alias fields, the protocol
// default, and finally known streaming clients. Nothing resolving means batch.
func ResolveStreamPreference(body map[string]interface{}, format stream.Format, r *http.Request) bool {
	if value, ok := normalizeStreamFlag(body["stream"]); ok {
		return value
	}

	query := r.URL.Query()
	if query.Has("stream") {
		if value, ok := normalizeStreamFlag(query.Get("stream")); ok {
			return value
		}
	}

	for _, field := range streamAliasFields {
		if value, ok := normalizeStreamFlag(body[field]); ok {
			return value
		}
	}

	if format == stream.FormatAnthropic {
		return true
	}
	if acceptsEventStream(r.Header.Get("Accept")) {
		return true
	}

	return isStreamingClient(r.Header)
}

func acceptsEventStream(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "text/event-stream" {
			return true
		}
	}
	return false
}

func isStreamingClient(h http.Header) bool {
	for _, name := range clientHintHeaders {
		value := strings.ToLower(h.Get(name))
		if value == "" {
			continue
		}
		for _, hint := range streamingClientHints {
			if strings.Contains(value, hint) {
				return true
			}
		}
	}
	return false
}
