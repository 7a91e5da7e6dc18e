package generation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youssefsiam38/convmem/generation"
)

type capturedRequest struct {
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	System      []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role string `json:"role"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *anthropic.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(
		option.WithBaseURL(server.URL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return &client
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	var got capturedRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [
				{"type": "text", "text": "Hello, "},
				{"type": "text", "text": "world"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 2}
		}`))
	})

	gen := generation.NewAnthropicGenerator(client, "claude-test", 0)
	assert.Equal(t, "claude-test", gen.Model())

	text, err := gen.Generate(context.Background(), &generation.Request{
		System: "be brief",
		Messages: []generation.Block{
			generation.User("hi"),
			generation.Assistant("hello"),
			generation.User("again"),
		},
		Temperature: generation.Float(0.2),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, generation.DefaultMaxTokens, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	require.Len(t, got.System, 1)
	assert.Equal(t, "be brief", got.System[0].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
}

func TestAnthropicGenerator_RequestMaxTokens(t *testing.T) {
	var got capturedRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_02","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`))
	})

	gen := generation.NewAnthropicGenerator(client, "m", 1024)
	text, err := gen.Generate(context.Background(), &generation.Request{
		Messages:  []generation.Block{generation.User("hi")},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Nil(t, got.Temperature)
	assert.Empty(t, got.System)
}

func TestAnthropicGenerator_Errors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	})
	gen := generation.NewAnthropicGenerator(client, "m", 0)

	t.Run("api error", func(t *testing.T) {
		_, err := gen.Generate(context.Background(), &generation.Request{
			Messages: []generation.Block{generation.User("hi")},
		})
		assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	})

	t.Run("no messages", func(t *testing.T) {
		_, err := gen.Generate(context.Background(), &generation.Request{})
		assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := gen.Generate(context.Background(), nil)
		assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	})
}
