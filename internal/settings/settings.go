// Package settings holds the engine's runtime-mutable configuration: the
// assistant binary, model endpoint, and planning defaults that operators
// can change without a restart. Values persist in the settings table and
// are served from a read-through cache guarded by a version counter.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/reviewguard/engine/internal/store"
)

// settingsKey is the single row the JSON snapshot lives under.
const settingsKey = "engine"

// Settings is the runtime-mutable configuration snapshot.
type Settings struct {
	AssistantBinary     string  `json:"assistant_binary"`
	ModelEndpoint       string  `json:"model_endpoint"`
	ModelAPIKey         string  `json:"model_api_key"`
	ModelName           string  `json:"model_name"`
	MaxTokensPerBatch   int     `json:"max_tokens_per_batch"`
	ContextMapTokens    int     `json:"context_map_tokens"`
	BatchTimeoutMinutes int     `json:"batch_timeout_minutes"`
	CharsPerToken       float64 `json:"chars_per_token"`
	PreciseTokens       bool    `json:"precise_tokens"`
}

// Defaults returns the documented default settings.
func Defaults() Settings {
	return Settings{
		AssistantBinary:     "code-assistant",
		MaxTokensPerBatch:   100_000,
		ContextMapTokens:    262_144,
		BatchTimeoutMinutes: 30,
		CharsPerToken:       3.5,
	}
}

// Redacted returns a copy safe for diagnostic output.
func (s Settings) Redacted() Settings {
	if s.ModelAPIKey != "" {
		s.ModelAPIKey = "<REDACTED>"
	}
	return s
}

// Store serves Settings with a read-through cache. Writes bump the version
// counter; readers re-read from the database when the version changed
// since their cached copy.
type Store struct {
	kv store.SettingsStore

	version atomic.Uint64

	mu            sync.Mutex
	cached        Settings
	cachedVersion uint64
	loaded        bool
}

// NewStore constructs a settings store over the persistence layer.
func NewStore(kv store.SettingsStore) *Store {
	s := &Store{kv: kv}
	s.version.Store(1)
	return s
}

// Get returns the current settings, reading through to the database only
// when a write has invalidated the cache.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	current := s.version.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && s.cachedVersion == current {
		return s.cached, nil
	}

	raw, err := s.kv.GetSetting(ctx, settingsKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.cached = Defaults()
			s.cachedVersion = current
			s.loaded = true
			return s.cached, nil
		}
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.cached = applyDefaults(loaded)
	s.cachedVersion = current
	s.loaded = true
	return s.cached, nil
}

// Put persists new settings and bumps the version so readers reload.
func (s *Store) Put(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.SetSetting(ctx, settingsKey, string(raw)); err != nil {
		return err
	}
	s.version.Add(1)
	return nil
}

// Version returns the current cache-invalidation counter.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// applyDefaults fills zero-valued fields so partially written settings
// rows stay usable.
func applyDefaults(s Settings) Settings {
	defaults := Defaults()
	if s.AssistantBinary == "" {
		s.AssistantBinary = defaults.AssistantBinary
	}
	if s.MaxTokensPerBatch <= 0 {
		s.MaxTokensPerBatch = defaults.MaxTokensPerBatch
	}
	if s.ContextMapTokens <= 0 {
		s.ContextMapTokens = defaults.ContextMapTokens
	}
	if s.BatchTimeoutMinutes <= 0 {
		s.BatchTimeoutMinutes = defaults.BatchTimeoutMinutes
	}
	if s.CharsPerToken <= 0 {
		s.CharsPerToken = defaults.CharsPerToken
	}
	return s
}
