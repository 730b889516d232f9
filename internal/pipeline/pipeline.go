package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LucasGB13/sttpstpp-1/internal/bus"
	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/voice"
)

// Transcriber converts captured audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioPayload) (string, error)
}

// Replier generates the assistant reply from the transcript and the
// conversation history.
type Replier interface {
	Reply(ctx context.Context, text string, history []voice.Turn) (string, error)
}

// Synthesizer converts reply text to speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (AudioPayload, error)
}

// AvatarRenderer turns synthesized speech into a playable talking-head
// video reference.
type AvatarRenderer interface {
	Render(ctx context.Context, audio AudioPayload) (string, error)
}

// VoicePipeline composes the four stage clients into one sequential run.
// It owns the up-front credential check and is the only writer of the
// conversation history.
type VoicePipeline struct {
	transcriber Transcriber
	replier     Replier
	synthesizer Synthesizer
	renderer    AvatarRenderer

	keys    *credentials.Store
	history *voice.History
	events  *bus.EventBus
	logger  zerolog.Logger
}

// New creates a VoicePipeline with all four stage clients injected.
func New(
	transcriber Transcriber,
	replier Replier,
	synthesizer Synthesizer,
	renderer AvatarRenderer,
	keys *credentials.Store,
	history *voice.History,
	events *bus.EventBus,
	logger zerolog.Logger,
) *VoicePipeline {
	return &VoicePipeline{
		transcriber: transcriber,
		replier:     replier,
		synthesizer: synthesizer,
		renderer:    renderer,
		keys:        keys,
		history:     history,
		events:      events,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// History exposes the conversation history for the transcript surface.
func (p *VoicePipeline) History() *voice.History {
	return p.history
}

// Run executes one end-to-end voice exchange. The stages run strictly in
// sequence; the first failure aborts the run with no partial result and the
// conversation history untouched. On success exactly two turns (user, then
// assistant) are appended to the history.
func (p *VoicePipeline) Run(ctx context.Context, audio AudioPayload) (*Result, error) {
	runID := uuid.NewString()
	logger := p.logger.With().Str("runId", runID).Logger()
	start := time.Now()

	// One consolidated credential check before any network call, so the
	// caller learns about every missing provider at once.
	if missing := p.keys.Missing(); len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("Run rejected: credentials missing")
		return nil, &ConfigurationError{Missing: missing}
	}

	p.publish(bus.EventTypeRunStarted, map[string]any{"runId": runID})
	logger.Info().Int("audioBytes", len(audio.Data)).Str("mime", audio.MIME).Msg("Voice run started")

	transcription, err := p.runStage(ctx, runID, StageTranscription, func(ctx context.Context) (string, error) {
		return p.transcriber.Transcribe(ctx, audio)
	})
	if err != nil {
		return nil, p.fail(logger, runID, StageTranscription, err)
	}
	logger.Info().Str("text", transcription).Msg("Transcription complete")

	reply, err := p.runStage(ctx, runID, StageDialogue, func(ctx context.Context) (string, error) {
		return p.replier.Reply(ctx, transcription, p.history.Turns())
	})
	if err != nil {
		return nil, p.fail(logger, runID, StageDialogue, err)
	}
	logger.Info().Str("reply", reply).Msg("Reply generated")

	var speech AudioPayload
	_, err = p.runStage(ctx, runID, StageSynthesis, func(ctx context.Context) (string, error) {
		var synthErr error
		speech, synthErr = p.synthesizer.Synthesize(ctx, reply)
		return "", synthErr
	})
	if err != nil {
		return nil, p.fail(logger, runID, StageSynthesis, err)
	}
	logger.Info().Int("audioBytes", len(speech.Data)).Msg("Speech synthesized")

	videoRef, err := p.runStage(ctx, runID, StageRender, func(ctx context.Context) (string, error) {
		return p.renderer.Render(ctx, speech)
	})
	if err != nil {
		return nil, p.fail(logger, runID, StageRender, err)
	}

	// Only a fully successful run may touch the history, so a failed
	// exchange never corrupts the dialogue context.
	p.history.AddExchange(transcription, reply)

	p.publish(bus.EventTypeRunCompleted, map[string]any{
		"runId":    runID,
		"videoRef": videoRef,
	})
	logger.Info().Str("videoRef", videoRef).Dur("elapsed", time.Since(start)).Msg("Voice run complete")

	return &Result{
		Transcription: transcription,
		Reply:         reply,
		VideoRef:      videoRef,
	}, nil
}

// runStage wraps one stage call with progress events.
func (p *VoicePipeline) runStage(ctx context.Context, runID string, stage Stage, fn func(context.Context) (string, error)) (string, error) {
	p.publish(bus.EventTypeStageStarted, map[string]any{"runId": runID, "stage": string(stage)})

	out, err := fn(ctx)
	if err != nil {
		return "", err
	}

	p.publish(bus.EventTypeStageCompleted, map[string]any{"runId": runID, "stage": string(stage)})
	return out, nil
}

// fail logs a stage failure, emits the run.failed event, and wraps the
// stage error for the caller.
func (p *VoicePipeline) fail(logger zerolog.Logger, runID string, stage Stage, err error) error {
	logger.Error().Err(err).Str("stage", string(stage)).Msg("Voice run aborted")

	p.publish(bus.EventTypeRunFailed, map[string]any{
		"runId": runID,
		"stage": string(stage),
		"error": err.Error(),
	})

	return fmt.Errorf("%s stage: %w", stage, err)
}

func (p *VoicePipeline) publish(eventType bus.EventType, data map[string]any) {
	if p.events == nil {
		return
	}
	p.events.Publish(bus.Event{Type: eventType, Data: data})
}
