package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
	"github.com/LucasGB13/sttpstpp-1/internal/voice"
)

type stubRunner struct {
	result *pipeline.Result
	err    error
	audio  pipeline.AudioPayload
}

func (s *stubRunner) Run(ctx context.Context, audio pipeline.AudioPayload) (*pipeline.Result, error) {
	s.audio = audio
	return s.result, s.err
}

func newTestServer(t *testing.T, runner VoiceRunner) (*Server, *credentials.Store, *voice.History) {
	t.Helper()

	keys := credentials.NewStore(filepath.Join(t.TempDir(), "keys.json"), zerolog.Nop())
	history := voice.NewHistory()
	s := New(Config{Addr: ":0", BodyLimit: 1 << 20}, runner, history, keys, nil, zerolog.Nop())
	return s, keys, history
}

func audioRequest(t *testing.T, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", "audio.webm")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/voice", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHandleVoice_Success(t *testing.T) {
	runner := &stubRunner{result: &pipeline.Result{
		Transcription: "olá",
		Reply:         "oi, como posso ajudar?",
		VideoRef:      "https://example/video123.mp4",
	}}
	s, _, _ := newTestServer(t, runner)

	resp, err := s.App().Test(audioRequest(t, []byte("captured")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "olá", body["transcription"])
	assert.Equal(t, "oi, como posso ajudar?", body["reply"])
	assert.Equal(t, "https://example/video123.mp4", body["videoRef"])
	assert.Equal(t, []byte("captured"), runner.audio.Data)
}

func TestHandleVoice_MissingUpload(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})

	req, err := http.NewRequest(http.MethodPost, "/api/voice", nil)
	require.NoError(t, err)

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleVoice_ConfigurationError(t *testing.T) {
	runner := &stubRunner{err: &pipeline.ConfigurationError{Missing: []string{"openai", "did"}}}
	s, _, _ := newTestServer(t, runner)

	resp, err := s.App().Test(audioRequest(t, []byte("captured")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Faltam chaves: OpenAI, D-ID", body["message"])
	assert.Equal(t, []any{"openai", "did"}, body["missing"])
}

func TestHandleVoice_StageErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantStage  string
	}{
		{
			name:       "upstream",
			err:        &pipeline.UpstreamError{Stage: pipeline.StageSynthesis, StatusCode: 500},
			wantStatus: http.StatusBadGateway,
			wantStage:  "synthesis",
		},
		{
			name:       "timeout",
			err:        &pipeline.TimeoutError{Stage: pipeline.StageRender, Attempts: 30},
			wantStatus: http.StatusGatewayTimeout,
			wantStage:  "render",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer(t, &stubRunner{err: tc.err})

			resp, err := s.App().Test(audioRequest(t, []byte("captured")), -1)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantStage, decodeBody(t, resp)["stage"])
		})
	}
}

func TestHandleVoice_BusyRejected(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{result: &pipeline.Result{}})
	s.busy.Store(true)

	resp, err := s.App().Test(audioRequest(t, []byte("captured")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleHistory(t *testing.T) {
	s, _, history := newTestServer(t, &stubRunner{})
	history.AddExchange("olá", "oi")

	req, _ := http.NewRequest(http.MethodGet, "/api/history", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	turns, ok := decodeBody(t, resp)["turns"].([]any)
	require.True(t, ok)
	assert.Len(t, turns, 2)
}

func TestHandleKeyStatus(t *testing.T) {
	s, keys, _ := newTestServer(t, &stubRunner{})
	keys.Set(credentials.ProviderElevenLabs, "xi-test")

	req, _ := http.NewRequest(http.MethodGet, "/api/keys", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["openai"])
	assert.Equal(t, true, body["elevenlabs"])
	assert.Equal(t, false, body["allValid"])
	assert.Equal(t, "Faltam chaves: OpenAI, D-ID", body["message"])
}

func TestHandleKeyUpdate(t *testing.T) {
	s, keys, _ := newTestServer(t, &stubRunner{})

	req, err := http.NewRequest(http.MethodPut, "/api/keys",
		strings.NewReader(`{"openai":"sk-test","elevenlabs":"xi-test","did":"did-test"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["allValid"])
	assert.Equal(t, "Todas as chaves estão configuradas", body["message"])
	assert.Equal(t, "sk-test", keys.Get(credentials.ProviderOpenAI))
}
