package dialogue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
	"github.com/LucasGB13/sttpstpp-1/internal/voice"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func testKeys() *credentials.Store {
	keys := credentials.NewStore("", zerolog.Nop())
	keys.Set(credentials.ProviderOpenAI, "sk-test")
	return keys
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL + "/v1"
	return NewOpenAIClient(testKeys(), zerolog.Nop(), cfg), server
}

func TestOpenAIClient_Reply(t *testing.T) {
	var got chatRequest

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "oi, como posso ajudar?"}, "finish_reason": "stop"}]
		}`))
	})

	history := []voice.Turn{
		{Role: voice.RoleUser, Content: "bom dia"},
		{Role: voice.RoleAssistant, Content: "bom dia! tudo bem?"},
	}

	reply, err := client.Reply(context.Background(), "olá", history)
	require.NoError(t, err)
	assert.Equal(t, "oi, como posso ajudar?", reply)

	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)

	// Persona first, history in order, new user text last.
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, SystemPersona, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "bom dia", got.Messages[1].Content)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "user", got.Messages[3].Role)
	assert.Equal(t, "olá", got.Messages[3].Content)
}

func TestOpenAIClient_MissingCredential(t *testing.T) {
	client := NewOpenAIClient(credentials.NewStore("", zerolog.Nop()), zerolog.Nop(), nil)

	_, err := client.Reply(context.Background(), "olá", nil)

	var credErr *pipeline.MissingCredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, pipeline.StageDialogue, credErr.Stage)
}

func TestOpenAIClient_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "requests"}}`))
	})

	_, err := client.Reply(context.Background(), "olá", nil)

	var upErr *pipeline.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, pipeline.StageDialogue, upErr.Stage)
	assert.Equal(t, http.StatusTooManyRequests, upErr.StatusCode)
	assert.Equal(t, "rate limit exceeded", upErr.Detail)
}
