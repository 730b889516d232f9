// Package credentials holds the opaque service credentials used by the
// voice pipeline. Keys are written by the configuration surface and are
// read-only from every pipeline stage's perspective.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Provider names for the three upstream services.
const (
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderDID        = "did"
)

// Providers lists all known providers in reporting order.
var Providers = []string{ProviderOpenAI, ProviderElevenLabs, ProviderDID}

// Store is a mutex-guarded provider -> secret map. Validation is presence
// only; no format checks, expiry, or rotation.
type Store struct {
	mu     sync.RWMutex
	keys   map[string]string
	path   string
	logger zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates an empty credential store. If path is non-empty the store
// persists keys there and Load/Watch read it back.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		keys:   make(map[string]string),
		path:   path,
		logger: logger.With().Str("component", "credentials").Logger(),
	}
}

// Get returns the secret for a provider, or "" when unset.
func (s *Store) Get(provider string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[provider]
}

// Set stores a secret for a provider. Setting "" removes it.
func (s *Store) Set(provider, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if secret == "" {
		delete(s.keys, provider)
		return
	}
	s.keys[provider] = secret
}

// Has reports whether a non-empty secret is present for the provider.
func (s *Store) Has(provider string) bool {
	return s.Get(provider) != ""
}

// Missing returns the providers without a secret, in Providers order.
func (s *Store) Missing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, p := range Providers {
		if s.keys[p] == "" {
			missing = append(missing, p)
		}
	}
	return missing
}

// Snapshot returns a copy of all stored keys.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.keys))
	for k, v := range s.keys {
		out[k] = v
	}
	return out
}

// Load reads the credential file into the store. A missing file is not an
// error; the store just stays empty.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read credential file: %w", err)
	}

	keys := make(map[string]string)
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("parse credential file: %w", err)
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()

	s.logger.Info().Int("providers", len(keys)).Msg("Credentials loaded")
	return nil
}

// Save writes the current keys to the credential file with owner-only
// permissions.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Watch reloads the store whenever the credential file changes on disk.
// Call Close to stop watching.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory; editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch credential directory: %w", err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.Load(); err != nil {
					s.logger.Error().Err(err).Msg("Failed to reload credentials")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error().Err(err).Msg("Credential watcher error")
			}
		}
	}()

	return nil
}

// Close stops the file watcher if one is running.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}
