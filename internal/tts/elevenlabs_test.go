package tts

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
)

func testKeys() *credentials.Store {
	keys := credentials.NewStore("", zerolog.Nop())
	keys.Set(credentials.ProviderElevenLabs, "xi-test")
	return keys
}

func TestElevenLabsClient_Synthesize(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	client := NewElevenLabsClient(testKeys(), zerolog.Nop(), cfg)

	audio, err := client.Synthesize(context.Background(), "oi, como posso ajudar?")
	require.NoError(t, err)

	assert.Equal(t, []byte("mp3-bytes"), audio.Data)
	assert.Equal(t, "audio/mpeg", audio.MIME)

	// Sarah is the default voice.
	assert.Equal(t, "/text-to-speech/EXAVITQu4vr4xnSDxMaL", gotPath)
	assert.Equal(t, "xi-test", gotKey)
	assert.Equal(t, "oi, como posso ajudar?", gotBody["text"])
	assert.Equal(t, "eleven_multilingual_v2", gotBody["model_id"])

	settings, ok := gotBody["voice_settings"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.5, settings["stability"], 0.001)
	assert.InDelta(t, 0.8, settings["similarity_boost"], 0.001)
	assert.InDelta(t, 0.2, settings["style"], 0.001)
	assert.Equal(t, true, settings["use_speaker_boost"])
}

func TestElevenLabsClient_VoiceSelection(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("mp3"))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	cfg.Voice = "charlotte"
	client := NewElevenLabsClient(testKeys(), zerolog.Nop(), cfg)

	_, err := client.Synthesize(context.Background(), "oi")
	require.NoError(t, err)
	assert.Equal(t, "/text-to-speech/XB0fDUnXU5powFXDhCwa", gotPath)
}

func TestElevenLabsClient_MissingCredential(t *testing.T) {
	client := NewElevenLabsClient(credentials.NewStore("", zerolog.Nop()), zerolog.Nop(), nil)

	_, err := client.Synthesize(context.Background(), "oi")

	var credErr *pipeline.MissingCredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, pipeline.StageSynthesis, credErr.Stage)
}

func TestElevenLabsClient_UpstreamErrorKeepsDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"invalid_api_key"}}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	client := NewElevenLabsClient(testKeys(), zerolog.Nop(), cfg)

	_, err := client.Synthesize(context.Background(), "oi")

	var upErr *pipeline.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, pipeline.StageSynthesis, upErr.Stage)
	assert.Equal(t, http.StatusUnauthorized, upErr.StatusCode)
	assert.Contains(t, upErr.Detail, "invalid_api_key")
}
