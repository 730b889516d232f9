package server

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/LucasGB13/sttpstpp-1/internal/bus"
	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleVoice accepts one captured audio clip and runs the full pipeline,
// returning the transcription, the reply, and the video reference.
func (s *Server) handleVoice(c *fiber.Ctx) error {
	if !s.busy.CompareAndSwap(false, true) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "Já existe uma mensagem em processamento",
		})
	}
	defer s.busy.Store(false)

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Arquivo de áudio ausente",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable audio upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable audio upload")
	}

	mime := fileHeader.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/webm"
	}

	result, err := s.runner.Run(c.UserContext(), pipeline.AudioPayload{Data: data, MIME: mime})
	if err != nil {
		return s.pipelineError(c, err)
	}

	return c.JSON(result)
}

// pipelineError maps a pipeline failure onto an HTTP status plus the
// user-facing message for the failed stage.
func (s *Server) pipelineError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var cfgErr *pipeline.ConfigurationError
	var upErr *pipeline.UpstreamError
	var timeoutErr *pipeline.TimeoutError
	switch {
	case errors.As(err, &cfgErr):
		status = fiber.StatusUnprocessableEntity
	case errors.As(err, &timeoutErr):
		status = fiber.StatusGatewayTimeout
	case errors.As(err, &upErr):
		status = fiber.StatusBadGateway
	}

	body := fiber.Map{
		"error":   err.Error(),
		"message": pipeline.UserMessage(err),
	}
	if stage := pipeline.FailedStage(err); stage != "" {
		body["stage"] = string(stage)
	}
	if cfgErr != nil {
		body["missing"] = cfgErr.Missing
	}

	return c.Status(status).JSON(body)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"turns": s.history.Turns()})
}

// handleKeyStatus reports per-provider key presence and the status message
// shown by the configuration panel.
func (s *Server) handleKeyStatus(c *fiber.Ctx) error {
	missing := s.keys.Missing()

	message := "Todas as chaves estão configuradas"
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, id := range missing {
			names[i] = pipeline.DisplayProvider(id)
		}
		message = "Faltam chaves: " + strings.Join(names, ", ")
	}

	return c.JSON(fiber.Map{
		"openai":     s.keys.Has(credentials.ProviderOpenAI),
		"elevenlabs": s.keys.Has(credentials.ProviderElevenLabs),
		"did":        s.keys.Has(credentials.ProviderDID),
		"allValid":   len(missing) == 0,
		"missing":    missing,
		"message":    message,
	})
}

type keyUpdateRequest struct {
	OpenAI     *string `json:"openai"`
	ElevenLabs *string `json:"elevenlabs"`
	DID        *string `json:"did"`
}

// handleKeyUpdate stores credentials from the configuration surface. Only
// the providers present in the request are touched.
func (s *Server) handleKeyUpdate(c *fiber.Ctx) error {
	var req keyUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.OpenAI != nil {
		s.keys.Set(credentials.ProviderOpenAI, *req.OpenAI)
	}
	if req.ElevenLabs != nil {
		s.keys.Set(credentials.ProviderElevenLabs, *req.ElevenLabs)
	}
	if req.DID != nil {
		s.keys.Set(credentials.ProviderDID, *req.DID)
	}

	if err := s.keys.Save(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist credentials")
		return fiber.NewError(fiber.StatusInternalServerError, "could not persist credentials")
	}

	if s.events != nil {
		s.events.Publish(bus.Event{Type: bus.EventTypeKeysUpdated})
	}

	return s.handleKeyStatus(c)
}
