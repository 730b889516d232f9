// Package dialogue generates the assistant reply for a transcribed
// utterance, using the prior conversation as context.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
	"github.com/LucasGB13/sttpstpp-1/internal/voice"
)

// SystemPersona is the fixed persona directive prepended to every dialogue
// request. Liz answers in warm, conversational Brazilian Portuguese.
const SystemPersona = `Você é Liz, uma assistente virtual brasileira amigável e prestativa.
Responda de forma natural, calorosa e em português brasileiro.
Mantenha as respostas concisas e conversacionais, como se fosse uma conversa face a face.
Seja expressiva e use um tom acolhedor.`

// Config holds dialogue generation configuration. MaxTokens caps the reply
// length; Temperature is a tunable sampling constant, not a contract.
type Config struct {
	BaseURL     string  `json:"base_url"` // override for tests; empty means api.openai.com
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:       openai.GPT4,
		MaxTokens:   150,
		Temperature: 0.7,
	}
}

// OpenAIClient generates replies through the OpenAI chat completion API.
type OpenAIClient struct {
	keys   *credentials.Store
	logger zerolog.Logger
	config *Config
}

// NewOpenAIClient creates a dialogue client.
func NewOpenAIClient(keys *credentials.Store, logger zerolog.Logger, config *Config) *OpenAIClient {
	if config == nil {
		config = DefaultConfig()
	}

	return &OpenAIClient{
		keys:   keys,
		logger: logger.With().Str("component", "dialogue-openai").Logger(),
		config: config,
	}
}

// Reply sends the persona directive, the conversation history in order, and
// the new user text as the final message, returning the generated reply.
func (c *OpenAIClient) Reply(ctx context.Context, text string, history []voice.Turn) (string, error) {
	apiKey := c.keys.Get(credentials.ProviderOpenAI)
	if apiKey == "" {
		return "", &pipeline.MissingCredentialError{Stage: pipeline.StageDialogue}
	}

	startTime := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPersona,
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	clientCfg := openai.DefaultConfig(apiKey)
	if c.config.BaseURL != "" {
		clientCfg.BaseURL = c.config.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			c.logger.Error().Int("status", apiErr.HTTPStatusCode).Str("detail", apiErr.Message).Msg("Chat completion error")
			return "", &pipeline.UpstreamError{
				Stage:      pipeline.StageDialogue,
				StatusCode: apiErr.HTTPStatusCode,
				Detail:     apiErr.Message,
			}
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := resp.Choices[0].Message.Content
	c.logger.Info().
		Int("historyTurns", len(history)).
		Int("replyLen", len(reply)).
		Dur("time", time.Since(startTime)).
		Msg("Reply generated")

	return reply, nil
}
