package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names one of the sequential network-backed pipeline steps.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageDialogue      Stage = "dialogue"
	StageSynthesis     Stage = "synthesis"
	StageRenderSubmit  Stage = "render-submit"
	StageRenderPoll    Stage = "render-poll"
	StageRender        Stage = "render"
)

// ConfigurationError reports credentials missing before any network call is
// attempted. Missing lists the provider names in reporting order.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing credentials for: %s", strings.Join(e.Missing, ", "))
}

// MissingCredentialError is the per-client variant of ConfigurationError,
// returned when a client is invoked directly without its credential.
type MissingCredentialError struct {
	Stage Stage
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s credential not configured", e.Stage)
}

// UpstreamError reports a non-success response from a contacted service.
type UpstreamError struct {
	Stage      Stage
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s service error %d: %s", e.Stage, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s service error %d", e.Stage, e.StatusCode)
}

// TimeoutError reports that the render poll ceiling was exceeded. The remote
// job is not cancelled; it is simply abandoned.
type TimeoutError struct {
	Stage    Stage
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %d attempts", e.Stage, e.Attempts)
}

// providerDisplayNames maps credential provider ids to the names shown to
// the user, matching the configuration panel copy.
var providerDisplayNames = map[string]string{
	"openai":     "OpenAI",
	"elevenlabs": "ElevenLabs",
	"did":        "D-ID",
}

// DisplayProvider returns the user-facing name for a provider id.
func DisplayProvider(id string) string {
	if name, ok := providerDisplayNames[id]; ok {
		return name
	}
	return id
}

// UserMessage translates a pipeline failure into a single user-facing
// message (pt-BR) identifying which stage failed.
func UserMessage(err error) string {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		names := make([]string, len(cfgErr.Missing))
		for i, id := range cfgErr.Missing {
			names[i] = DisplayProvider(id)
		}
		return "Faltam chaves: " + strings.Join(names, ", ")
	}

	var credErr *MissingCredentialError
	if errors.As(err, &credErr) {
		return stageMessage(credErr.Stage)
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return "Tempo esgotado ao gerar o vídeo do avatar"
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return stageMessage(upErr.Stage)
	}

	return "Erro ao processar a mensagem de voz"
}

func stageMessage(stage Stage) string {
	switch stage {
	case StageTranscription:
		return "Falha na transcrição do áudio"
	case StageDialogue:
		return "Falha ao gerar a resposta"
	case StageSynthesis:
		return "Falha na síntese de voz"
	case StageRenderSubmit, StageRenderPoll, StageRender:
		return "Falha ao gerar o vídeo do avatar"
	default:
		return "Erro ao processar a mensagem de voz"
	}
}

// FailedStage extracts the stage tag from a pipeline failure, or "" when the
// error is not stage-tagged (for example a ConfigurationError).
func FailedStage(err error) Stage {
	var credErr *MissingCredentialError
	if errors.As(err, &credErr) {
		return credErr.Stage
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Stage
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Stage
	}
	return ""
}
