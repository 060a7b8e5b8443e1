/*
Package session keeps one conversation driver per browser session. Entries
live in a bounded LRU with a TTL; evicted conversations are reset so a late
provider reply can never land in them.
*/
package session

import (
	"sync"
	"time"

	"Healthbite/internal/conversation"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxSessions = 1000
	DefaultTTL         = 2 * time.Hour
	// DefaultRateLimit allows one chat message every two seconds per session.
	DefaultRateLimit = rate.Limit(0.5)
	DefaultBurst     = 3
)

// Entry is one visitor's conversation.
type Entry struct {
	ID        string
	Driver    *conversation.Driver
	Limiter   *rate.Limiter
	CreatedAt time.Time
}

// Config sizes the store.
type Config struct {
	MaxSessions int
	TTL         time.Duration
	RateLimit   rate.Limit
	Burst       int
}

// DriverFactory builds the driver for a new session.
type DriverFactory func(id string) *conversation.Driver

// Store maps session IDs to entries.
type Store struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *Entry]
	factory DriverFactory
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStore creates a store. Zero config fields take the package defaults.
func NewStore(cfg Config, factory DriverFactory, logger zerolog.Logger) *Store {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	s := &Store{factory: factory, cfg: cfg, logger: logger, now: time.Now}
	s.cache = expirable.NewLRU[string, *Entry](cfg.MaxSessions, s.onEvict, cfg.TTL)
	return s
}

func (s *Store) onEvict(id string, e *Entry) {
	e.Driver.Reset()
	s.logger.Info().Str("session_id", id).Msg("Session evicted")
}

// GetOrCreate returns the entry for id, creating one when id is empty,
// unknown, or expired. The returned ID may differ from the one passed in.
func (s *Store) GetOrCreate(id string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if e, ok := s.cache.Get(id); ok {
			return e, false
		}
	}

	// Unknown IDs are replaced, never adopted.
	id = uuid.NewString()
	e := &Entry{
		ID:        id,
		Driver:    s.factory(id),
		Limiter:   rate.NewLimiter(s.cfg.RateLimit, s.cfg.Burst),
		CreatedAt: s.now(),
	}
	s.cache.Add(id, e)
	s.logger.Info().Str("session_id", id).Msg("Session created")
	return e, true
}

// Get returns a live entry.
func (s *Store) Get(id string) (*Entry, bool) {
	return s.cache.Get(id)
}

// Remove drops a session and resets its conversation.
func (s *Store) Remove(id string) bool {
	return s.cache.Remove(id)
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Close resets and drops every session.
func (s *Store) Close() {
	s.cache.Purge()
}
