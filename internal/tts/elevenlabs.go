// Package tts provides text-to-speech synthesis for the voice pipeline.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
)

const (
	// DefaultEndpoint is the ElevenLabs API base URL.
	DefaultEndpoint = "https://api.elevenlabs.io/v1"

	// DefaultVoice is Sarah, chosen for Brazilian Portuguese naturalness.
	DefaultVoice = "sarah"
)

// voiceMap resolves the configured voice names to ElevenLabs voice IDs.
var voiceMap = map[string]string{
	"sarah":     "EXAVITQu4vr4xnSDxMaL", // natural female, pt-BR friendly
	"aria":      "9BWtsMINqrJLrRacOk9x", // expressive female
	"charlotte": "XB0fDUnXU5powFXDhCwa", // soft female
}

// Config holds ElevenLabs synthesis configuration. The voice-style
// parameters are fixed constants applied uniformly to every request.
type Config struct {
	Endpoint        string        `json:"endpoint"`
	Voice           string        `json:"voice"`
	ModelID         string        `json:"model_id"`
	Stability       float64       `json:"stability"`
	SimilarityBoost float64       `json:"similarity_boost"`
	Style           float64       `json:"style"`
	UseSpeakerBoost bool          `json:"use_speaker_boost"`
	Timeout         time.Duration `json:"timeout"`
}

// DefaultConfig returns sensible defaults for Liz's voice.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:        DefaultEndpoint,
		Voice:           DefaultVoice,
		ModelID:         "eleven_multilingual_v2",
		Stability:       0.5,
		SimilarityBoost: 0.8,
		Style:           0.2,
		UseSpeakerBoost: true,
		Timeout:         30 * time.Second,
	}
}

// ElevenLabsClient synthesizes speech through the ElevenLabs API.
type ElevenLabsClient struct {
	keys   *credentials.Store
	client *http.Client
	logger zerolog.Logger
	config *Config
}

// NewElevenLabsClient creates a speech synthesis client.
func NewElevenLabsClient(keys *credentials.Store, logger zerolog.Logger, config *Config) *ElevenLabsClient {
	if config == nil {
		config = DefaultConfig()
	}

	return &ElevenLabsClient{
		keys:   keys,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("component", "tts-elevenlabs").Logger(),
		config: config,
	}
}

// Synthesize converts the reply text to an MP3 speech payload.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (pipeline.AudioPayload, error) {
	apiKey := c.keys.Get(credentials.ProviderElevenLabs)
	if apiKey == "" {
		return pipeline.AudioPayload{}, &pipeline.MissingCredentialError{Stage: pipeline.StageSynthesis}
	}

	startTime := time.Now()

	voiceID := c.config.Voice
	if mapped, ok := voiceMap[voiceID]; ok {
		voiceID = mapped
	}

	payload := map[string]any{
		"text":     text,
		"model_id": c.config.ModelID,
		"voice_settings": map[string]any{
			"stability":         c.config.Stability,
			"similarity_boost":  c.config.SimilarityBoost,
			"style":             c.config.Style,
			"use_speaker_boost": c.config.UseSpeakerBoost,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return pipeline.AudioPayload{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", strings.TrimRight(c.config.Endpoint, "/"), voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return pipeline.AudioPayload{}, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return pipeline.AudioPayload{}, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The service body carries the diagnostic detail; keep it.
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("ElevenLabs API error")
		return pipeline.AudioPayload{}, &pipeline.UpstreamError{
			Stage:      pipeline.StageSynthesis,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(body)),
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.AudioPayload{}, fmt.Errorf("read audio: %w", err)
	}

	c.logger.Info().
		Str("voice", voiceID).
		Int("audioBytes", len(audioData)).
		Dur("time", time.Since(startTime)).
		Msg("Speech synthesis complete")

	return pipeline.AudioPayload{Data: audioData, MIME: "audio/mpeg"}, nil
}

// Voices returns the configured voice names.
func Voices() []string {
	return []string{"sarah", "aria", "charlotte"}
}
