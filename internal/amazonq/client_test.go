package amazonq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvcrn/amazonq-proxy/internal/auth"
	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type staticTokens string

func (s staticTokens) Do(ctx context.Context, call func(token string) (*http.Response, error)) (*http.Response, error) {
	return call(string(s))
}

func TestNewPayloadShape(t *testing.T) {
	payload := NewPayload(Request{Prompt: "hi", ConversationID: "conv-1", ModelID: "claude-sonnet-4.5"})
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"conversationState": {
			"chatTriggerType": "MANUAL",
			"conversationId": "conv-1",
			"currentMessage": {"userInputMessage": {
				"content": "hi",
				"images": [],
				"modelId": "claude-sonnet-4.5",
				"origin": "IDE",
				"userInputMessageContext": {
					"editorState": {"useRelevantDocuments": false, "workspaceFolders": []},
					"envState": {"operatingSystem": "linux"}
				}
			}},
			"history": []
		}
	}`, string(b))
}

func TestNewPayloadCarriesProfileArn(t *testing.T) {
	b, err := json.Marshal(NewPayload(Request{Prompt: "hi", ProfileARN: "arn:p"}))
	require.NoError(t, err)
	assert.Equal(t, "arn:p", gjson.GetBytes(b, "profileArn").String())
}

func TestGenerateSendsHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generateAssistantResponse", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "false", r.Header.Get("x-amzn-codewhisperer-optout"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage.content").String())
		w.Write([]byte(`{"content":"hi"}`))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL+"/", upstream.Client(), staticTokens("tok"))
	resp, err := c.Generate(context.Background(), Request{Prompt: "hello", ConversationID: "c", ModelID: "m"})
	require.NoError(t, err)
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"content":"hi"}`, string(b))
}

func TestGenerateNon2xxIsTransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, upstream.Client(), staticTokens("tok"))
	_, err := c.Generate(context.Background(), Request{Prompt: "hello"})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusTooManyRequests, transportErr.Status)
	assert.Equal(t, "slow down", transportErr.Message())
}

func TestGenerateRefreshesOnceAfter403(t *testing.T) {
	var oidcCalls, upstreamCalls atomic.Int32
	oidc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oidcCalls.Add(1)
		w.Write([]byte(`{"accessToken":"fresh","expiresIn":3600}`))
	}))
	defer oidc.Close()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"content":"ok"}`))
	}))
	defer upstream.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "amazonq-credentials",
		[]byte(`{"refresh_token":"r","client_id":"c","client_secret":"s","access_token":"old","token_expiry":"2099-01-01T00:00:00.000Z"}`)))
	tokens := auth.NewManager(auth.Options{Store: store, TokenURL: oidc.URL, HTTPClient: oidc.Client(), Now: time.Now})

	c := NewClient(upstream.URL, upstream.Client(), tokens)
	resp, err := c.Generate(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(2), upstreamCalls.Load())
	assert.Equal(t, int32(1), oidcCalls.Load())
}
