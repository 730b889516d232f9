// lizd hosts the Liz voice assistant: captured speech in, talking-avatar
// video reply out.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/LucasGB13/sttpstpp-1/internal/avatar"
	"github.com/LucasGB13/sttpstpp-1/internal/bus"
	"github.com/LucasGB13/sttpstpp-1/internal/config"
	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/dialogue"
	"github.com/LucasGB13/sttpstpp-1/internal/logging"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
	"github.com/LucasGB13/sttpstpp-1/internal/server"
	"github.com/LucasGB13/sttpstpp-1/internal/stt"
	"github.com/LucasGB13/sttpstpp-1/internal/tts"
	"github.com/LucasGB13/sttpstpp-1/internal/voice"
)

func main() {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", true)
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Console)

	keys := credentials.NewStore(cfg.Credentials.File, logger)
	if err := keys.Load(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load credentials")
	}
	seedKeysFromEnv(keys)
	if err := keys.Watch(); err != nil {
		logger.Warn().Err(err).Msg("Credential file watching disabled")
	}
	defer keys.Close()

	events := bus.NewEventBus()
	history := voice.NewHistory()

	transcriber := stt.NewWhisperClient(keys, logger, &stt.Config{
		Endpoint: cfg.STT.Endpoint,
		Model:    cfg.STT.Model,
		Language: cfg.STT.Language,
		Timeout:  cfg.STT.Timeout,
	})
	replier := dialogue.NewOpenAIClient(keys, logger, &dialogue.Config{
		BaseURL:     cfg.Dialogue.BaseURL,
		Model:       cfg.Dialogue.Model,
		MaxTokens:   cfg.Dialogue.MaxTokens,
		Temperature: float32(cfg.Dialogue.Temperature),
	})
	synthesizer := tts.NewElevenLabsClient(keys, logger, &tts.Config{
		Endpoint:        cfg.TTS.Endpoint,
		Voice:           cfg.TTS.Voice,
		ModelID:         cfg.TTS.ModelID,
		Stability:       cfg.TTS.Stability,
		SimilarityBoost: cfg.TTS.SimilarityBoost,
		Style:           cfg.TTS.Style,
		UseSpeakerBoost: cfg.TTS.UseSpeakerBoost,
		Timeout:         cfg.TTS.Timeout,
	})
	renderer := avatar.NewDIDClient(keys, logger, &avatar.Config{
		Endpoint:     cfg.Avatar.Endpoint,
		SourceURL:    cfg.Avatar.SourceURL,
		Fluent:       cfg.Avatar.Fluent,
		Stitch:       cfg.Avatar.Stitch,
		ResultFormat: cfg.Avatar.ResultFormat,
		PollInterval: cfg.Avatar.PollInterval,
		MaxPolls:     cfg.Avatar.MaxPolls,
		Timeout:      cfg.Avatar.Timeout,
	})

	voicePipeline := pipeline.New(transcriber, replier, synthesizer, renderer, keys, history, events, logger)

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		BodyLimit: cfg.Server.BodyLimit,
	}, voicePipeline, history, keys, events, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("Shutting down")
		_ = srv.Shutdown()
	}()

	if err := srv.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped")
	}
}

// seedKeysFromEnv fills any credential not present in the store from the
// conventional environment variables.
func seedKeysFromEnv(keys *credentials.Store) {
	envKeys := map[string]string{
		credentials.ProviderOpenAI:     "OPENAI_API_KEY",
		credentials.ProviderElevenLabs: "ELEVENLABS_API_KEY",
		credentials.ProviderDID:        "DID_API_KEY",
	}
	for provider, envVar := range envKeys {
		if !keys.Has(provider) {
			if value := os.Getenv(envVar); value != "" {
				keys.Set(provider, value)
			}
		}
	}
}
