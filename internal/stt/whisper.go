// Package stt provides speech-to-text transcription for the voice pipeline.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
)

// ErrEmptyAudio is returned when the captured payload carries no data.
var ErrEmptyAudio = errors.New("audio payload is empty")

// Config holds Whisper API configuration.
type Config struct {
	Endpoint string        `json:"endpoint"`
	Model    string        `json:"model"`
	Language string        `json:"language"` // fixed target-language hint
	Timeout  time.Duration `json:"timeout"`
}

// DefaultConfig returns sensible defaults: whisper-1 with a Brazilian
// Portuguese language hint.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "https://api.openai.com/v1/audio/transcriptions",
		Model:    "whisper-1",
		Language: "pt",
		Timeout:  30 * time.Second,
	}
}

// WhisperClient transcribes audio through OpenAI's Whisper API. One attempt
// per pipeline run; there is no retry.
type WhisperClient struct {
	keys   *credentials.Store
	client *http.Client
	logger zerolog.Logger
	config *Config
}

// NewWhisperClient creates a Whisper transcription client.
func NewWhisperClient(keys *credentials.Store, logger zerolog.Logger, config *Config) *WhisperClient {
	if config == nil {
		config = DefaultConfig()
	}

	return &WhisperClient{
		keys:   keys,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("component", "stt-whisper").Logger(),
		config: config,
	}
}

// Transcribe uploads the audio payload and returns the recognized text.
func (c *WhisperClient) Transcribe(ctx context.Context, audio pipeline.AudioPayload) (string, error) {
	apiKey := c.keys.Get(credentials.ProviderOpenAI)
	if apiKey == "" {
		return "", &pipeline.MissingCredentialError{Stage: pipeline.StageTranscription}
	}

	if len(audio.Data) == 0 {
		return "", ErrEmptyAudio
	}

	startTime := time.Now()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", fileName(audio.MIME))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}

	if err := writer.WriteField("model", c.config.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if c.config.Language != "" {
		if err := writer.WriteField("language", c.config.Language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Whisper API error")
		return "", &pipeline.UpstreamError{
			Stage:      pipeline.StageTranscription,
			StatusCode: resp.StatusCode,
		}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	c.logger.Info().Str("text", result.Text).Dur("time", time.Since(startTime)).Msg("Transcription complete")
	return result.Text, nil
}

// fileName maps the declared MIME type to the upload filename Whisper
// expects for format detection.
func fileName(mime string) string {
	switch {
	case strings.Contains(mime, "webm"):
		return "audio.webm"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "audio.mp3"
	case strings.Contains(mime, "wav"):
		return "audio.wav"
	case strings.Contains(mime, "ogg"):
		return "audio.ogg"
	default:
		return "audio.webm"
	}
}
