package model

import (
	"context"
	"sync"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/session"
	"github.com/rs/zerolog/log"
)

// AuthStore maps credential profile names to providers. The core consults it
// for validation only; credentials themselves are handed to the agent
// collaborator untouched.
type AuthStore struct {
	mu       sync.RWMutex
	profiles map[string]config.AuthProfile
}

// NewAuthStore indexes the configured auth profiles
func NewAuthStore(profiles []config.AuthProfile) *AuthStore {
	s := &AuthStore{
		profiles: make(map[string]config.AuthProfile, len(profiles)),
	}
	for _, p := range profiles {
		s.profiles[p.Name] = p
	}
	return s
}

// Profile returns the profile with the given name
func (s *AuthStore) Profile(name string) (config.AuthProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Replace swaps the full profile set, used on config reload
func (s *AuthStore) Replace(profiles []config.AuthProfile) {
	next := make(map[string]config.AuthProfile, len(profiles))
	for _, p := range profiles {
		next[p.Name] = p
	}

	s.mu.Lock()
	s.profiles = next
	s.mu.Unlock()
}

// Valid reports whether the named profile exists and serves the provider
func (s *AuthStore) Valid(name, provider string) bool {
	p, ok := s.Profile(name)
	return ok && p.Provider == provider
}

// ReconcileAuthOverride clears a stored auth-profile override that no longer
// names an existing profile for the session's effective provider. Called on
// the reconciliation pass before a run starts.
func ReconcileAuthOverride(ctx context.Context, store session.Store, auth *AuthStore, key, provider string) error {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return err
	}

	if entry.AuthProfileOverride == "" {
		return nil
	}
	if auth.Valid(entry.AuthProfileOverride, provider) {
		return nil
	}

	stale := entry.AuthProfileOverride
	_, err = store.Update(ctx, key, func(e *session.Entry) {
		e.AuthProfileOverride = ""
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("session_key", key).
		Str("profile", stale).
		Msg("Cleared stale auth profile override")
	return nil
}
