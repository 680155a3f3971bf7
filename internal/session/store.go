package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raihan/sela/internal/observability"
	"github.com/raihan/sela/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Mutator applies an in-place change to an entry
type Mutator func(*Entry)

// Store is the read/modify/persist contract consumed by the directive engine
// and the run coordinator.
type Store interface {
	// Get returns the entry for key, or a default entry when absent
	Get(ctx context.Context, key string) (Entry, error)
	// Update applies mutator to the current entry and persists the result.
	// The returned entry reflects the mutation even when persistence failed.
	Update(ctx context.Context, key string, mutator Mutator) (Entry, error)
	// Keys lists the keys with stored entries
	Keys(ctx context.Context) ([]string, error)
}

// Persister is the durable storage collaborator behind a Manager
type Persister interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Save(ctx context.Context, key string, entry Entry) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Manager implements Store on top of a Persister with per-key serialization
// and an in-memory authoritative cache.
type Manager struct {
	persister Persister

	mu      sync.RWMutex
	cache   map[string]Entry
	keyMu   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewManager creates a session manager backed by the given persister
func NewManager(persister Persister) *Manager {
	observability.EnsureRegistered()

	return &Manager{
		persister: persister,
		cache:     make(map[string]Entry),
		keyMu:     make(map[string]*sync.Mutex),
	}
}

// ValidateKey validates a session key for storage safety
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, exists := m.keyMu[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	m.keyMu[key] = lock
	return lock
}

// Get returns the stored entry for key, or a default entry when absent.
// A stale persisted copy never shadows an in-memory entry that failed to save.
func (m *Manager) Get(ctx context.Context, key string) (Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"sela.session",
		"session.get",
		attribute.String("session_key", key),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateKey(key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return DefaultEntry(), err
	}

	m.mu.RLock()
	cached, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	entry, found, err := m.persister.Load(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return DefaultEntry(), err
	}
	if !found {
		return DefaultEntry(), nil
	}

	m.mu.Lock()
	m.cache[key] = entry
	m.mu.Unlock()

	return entry, nil
}

// Update applies mutator under the key's lock and persists the result. The
// mutated entry is cached before the save so a persistence failure leaves the
// in-memory value authoritative for the rest of the run.
func (m *Manager) Update(ctx context.Context, key string, mutator Mutator) (Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"sela.session",
		"session.update",
		attribute.String("session_key", key),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", key).Logger()

	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := ValidateKey(key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return DefaultEntry(), err
	}

	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	entry, ok := m.cache[key]
	m.mu.RUnlock()

	if !ok {
		loaded, found, err := m.persister.Load(ctx, key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return DefaultEntry(), fmt.Errorf("failed to load entry: %w", err)
		}
		if found {
			entry = loaded
		} else {
			entry = DefaultEntry()
		}
	}

	mutator(&entry)
	entry.UpdatedAt = time.Now()

	m.mu.Lock()
	m.cache[key] = entry
	m.mu.Unlock()

	if err := m.persister.Save(ctx, key, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Failed to persist session entry")
		return entry, fmt.Errorf("failed to persist entry: %w", err)
	}

	logger.Debug().Msg("Session entry updated")
	return entry, nil
}

// Keys lists stored session keys
func (m *Manager) Keys(ctx context.Context) ([]string, error) {
	keys, err := m.persister.Keys(ctx)
	if err != nil {
		return nil, err
	}
	observability.SetActiveSessions(len(keys))
	return keys, nil
}

// Close releases the manager and its persister
func (m *Manager) Close() error {
	m.locksMu.Lock()
	m.keyMu = make(map[string]*sync.Mutex)
	m.locksMu.Unlock()

	return m.persister.Close()
}
