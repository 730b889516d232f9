// Package config provides configuration management for the Liz voice service.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	STT         STTConfig         `mapstructure:"stt"`
	Dialogue    DialogueConfig    `mapstructure:"dialogue"`
	TTS         TTSConfig         `mapstructure:"tts"`
	Avatar      AvatarConfig      `mapstructure:"avatar"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	BodyLimit int    `mapstructure:"body_limit"` // max upload size in bytes
}

// CredentialsConfig locates the credential file written by the
// configuration surface
type CredentialsConfig struct {
	File string `mapstructure:"file"`
}

// STTConfig configures speech-to-text
type STTConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DialogueConfig configures reply generation
type DialogueConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// TTSConfig configures speech synthesis
type TTSConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Voice           string        `mapstructure:"voice"` // sarah, aria, charlotte
	ModelID         string        `mapstructure:"model_id"`
	Stability       float64       `mapstructure:"stability"`
	SimilarityBoost float64       `mapstructure:"similarity_boost"`
	Style           float64       `mapstructure:"style"`
	UseSpeakerBoost bool          `mapstructure:"use_speaker_boost"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// AvatarConfig configures avatar video rendering
type AvatarConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	SourceURL    string        `mapstructure:"source_url"`
	Fluent       bool          `mapstructure:"fluent"`
	Stitch       bool          `mapstructure:"stitch"`
	ResultFormat string        `mapstructure:"result_format"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPolls     int           `mapstructure:"max_polls"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			BodyLimit: 25 * 1024 * 1024,
		},
		Credentials: CredentialsConfig{
			File: "", // resolved to <configDir>/credentials.json by Load
		},
		STT: STTConfig{
			Endpoint: "https://api.openai.com/v1/audio/transcriptions",
			Model:    "whisper-1",
			Language: "pt",
			Timeout:  30 * time.Second,
		},
		Dialogue: DialogueConfig{
			Model:       "gpt-4",
			MaxTokens:   150,
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Endpoint:        "https://api.elevenlabs.io/v1",
			Voice:           "sarah",
			ModelID:         "eleven_multilingual_v2",
			Stability:       0.5,
			SimilarityBoost: 0.8,
			Style:           0.2,
			UseSpeakerBoost: true,
			Timeout:         30 * time.Second,
		},
		Avatar: AvatarConfig{
			Endpoint:     "https://api.d-id.com",
			SourceURL:    "https://create-images-results.d-id.com/DefaultPresenters/Noelle_f/image.jpeg",
			Fluent:       true,
			Stitch:       true,
			ResultFormat: "mp4",
			PollInterval: 2 * time.Second,
			MaxPolls:     30,
			Timeout:      30 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("LIZ")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	if cfg.Credentials.File == "" {
		cfg.Credentials.File = filepath.Join(configDir, "credentials.json")
	}

	return cfg, nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lizvoice"), nil
}
