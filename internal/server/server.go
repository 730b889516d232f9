// Package server exposes the voice pipeline over HTTP: one endpoint per
// external surface (capture, transcript, configuration) plus a websocket
// relay for pipeline progress events.
package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/LucasGB13/sttpstpp-1/internal/bus"
	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
	"github.com/LucasGB13/sttpstpp-1/internal/voice"
)

// VoiceRunner runs one end-to-end voice exchange.
type VoiceRunner interface {
	Run(ctx context.Context, audio pipeline.AudioPayload) (*pipeline.Result, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Addr      string
	BodyLimit int
}

// Server hosts the HTTP and websocket surface.
type Server struct {
	app     *fiber.App
	runner  VoiceRunner
	history *voice.History
	keys    *credentials.Store
	events  *bus.EventBus
	logger  zerolog.Logger
	addr    string

	// At most one voice exchange may be in flight; concurrent runs are
	// rejected at the boundary instead of being coordinated.
	busy atomic.Bool

	mu          sync.Mutex
	subscribers map[chan bus.Event]struct{}
}

// New creates the server and registers all routes.
func New(cfg Config, runner VoiceRunner, history *voice.History, keys *credentials.Store, events *bus.EventBus, logger zerolog.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			BodyLimit:             cfg.BodyLimit,
			DisableStartupMessage: true,
		}),
		runner:      runner,
		history:     history,
		keys:        keys,
		events:      events,
		logger:      logger.With().Str("component", "server").Logger(),
		addr:        cfg.Addr,
		subscribers: make(map[chan bus.Event]struct{}),
	}

	if events != nil {
		events.SubscribeAll(s.broadcast)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealth)

	api := s.app.Group("/api")
	api.Post("/voice", s.handleVoice)
	api.Get("/history", s.handleHistory)
	api.Get("/keys", s.handleKeyStatus)
	api.Put("/keys", s.handleKeyUpdate)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/events", websocket.New(s.handleEvents))
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// broadcast fans a bus event out to every connected websocket, dropping
// events for subscribers that cannot keep up.
func (s *Server) broadcast(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *Server) addSubscriber() chan bus.Event {
	ch := make(chan bus.Event, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) removeSubscriber(ch chan bus.Event) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

// handleEvents streams pipeline progress events to the UI.
func (s *Server) handleEvents(c *websocket.Conn) {
	ch := s.addSubscriber()
	defer s.removeSubscriber(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-ch:
			if err := c.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
