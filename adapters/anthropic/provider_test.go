package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyglotai/router/types"
)

type capturedRequest struct {
	System   string            `json:"system"`
	Messages []json.RawMessage `json:"messages"`
}

// TestChatExtractsSystemMessageToTopLevelField verifies the wire contract:
// a system-role message in the neutral list must surface as the request's
// top-level "system" field, and never as a "system"-role entry inside
// "messages".
func TestChatExtractsSystemMessageToTopLevelField(t *testing.T) {
	var captured capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, defaultAnthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(wireResponse{
			Content:    []contentBlock{{Type: "text", Text: "hi there"}},
			Model:      "claude-test",
			StopReason: "end_turn",
			Usage:      wireUsage{InputTokens: 10, OutputTokens: 5},
		})
	}))
	defer server.Close()

	p := New(server.URL, "test-key", "claude-test", "", 5*time.Second, nil)
	resp := p.Chat(context.Background(), types.ChatRequest{
		Messages: []types.ChatMessage{
			{Role: types.RoleSystem, Content: "be terse"},
			{Role: types.RoleUser, Content: "hello"},
		},
	})

	require.True(t, resp.Success)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, 10, resp.PromptTokens)
	assert.Equal(t, 5, resp.CompletionTokens)
	assert.Equal(t, 15, resp.TotalTokens)

	assert.Equal(t, "be terse", captured.System)
	require.Len(t, captured.Messages, 1, "the system message must not also appear inside messages")
	var onlyMsg wireMessage
	require.NoError(t, json.Unmarshal(captured.Messages[0], &onlyMsg))
	assert.Equal(t, "user", onlyMsg.Role)
	assert.Equal(t, "hello", onlyMsg.Content)
}

func TestChatMapsHTTPErrorToRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	p := New(server.URL, "test-key", "claude-test", "", 5*time.Second, nil)
	resp := p.Chat(context.Background(), types.ChatRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
	})

	assert.False(t, resp.Success)
	assert.Equal(t, types.ErrorKindRateLimit, resp.ErrorKind)
	assert.Equal(t, "slow down", resp.ErrorMessage)
}

func TestCompleteLowersThroughChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(wireResponse{
			Content: []contentBlock{{Type: "text", Text: "done"}},
			Model:   "claude-test",
		})
	}))
	defer server.Close()

	p := New(server.URL, "test-key", "claude-test", "", 5*time.Second, nil)
	resp := p.Complete(context.Background(), types.CompletionRequest{Prompt: "hello", SystemMessage: "be terse"})
	require.True(t, resp.Success)
	assert.Equal(t, "done", resp.Text)
}
