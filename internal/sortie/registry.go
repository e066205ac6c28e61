package sortie

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sortie/internal/obs"
	"github.com/noah-isme/backend-sortie/internal/pricing"
)

// ErrSessionNotFound indicates an unknown or expired editing session.
var ErrSessionNotFound = errors.New("sortie: session not found")

const (
	defaultIdleTTL  = 2 * time.Hour
	defaultGuardTTL = 30 * time.Second
)

// Config groups the dependencies shared by every editing session.
type Config struct {
	Catalog      Catalog
	Resolver     Dispatcher
	OrderNumbers OrderNumberSource
	Submitter    Submitter
	// Guard is optional; when set, submissions lock on the order number.
	Guard    SubmitGuard
	GuardTTL time.Duration
	Mode     pricing.SurchargeMode
	// IdleTTL is how long an untouched session survives a Sweep.
	IdleTTL time.Duration
	Logger  *zerolog.Logger
	NewID   func() string
	Now     func() time.Time
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Sessions is the in-process registry of editing sessions.
type Sessions struct {
	deps *deps
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	items map[string]*entry
}

// NewSessions validates cfg and returns an empty registry.
func NewSessions(cfg Config) (*Sessions, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("sortie: catalog is required")
	}
	if cfg.Submitter == nil {
		return nil, errors.New("sortie: submitter is required")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	newID := cfg.NewID
	if newID == nil {
		newID = defaultID
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	guardTTL := cfg.GuardTTL
	if guardTTL <= 0 {
		guardTTL = defaultGuardTTL
	}
	return &Sessions{
		deps: &deps{
			catalog:   cfg.Catalog,
			resolver:  cfg.Resolver,
			numbers:   cfg.OrderNumbers,
			submitter: cfg.Submitter,
			guard:     cfg.Guard,
			guardTTL:  guardTTL,
			mode:      pricing.ParseSurchargeMode(string(cfg.Mode)),
			logger:    logger,
			newID:     newID,
		},
		ttl:   ttl,
		now:   now,
		items: map[string]*entry{},
	}, nil
}

// Start opens a session with a pre-filled order number suggestion.
func (r *Sessions) Start(ctx context.Context) *Session {
	s := newSession(r.deps.newID(), r.deps)
	s.prefillOrderNumber(ctx)
	r.mu.Lock()
	r.items[s.id] = &entry{session: s, lastSeen: r.now()}
	r.report()
	r.mu.Unlock()
	return s
}

// Get returns a live session and marks it as used.
func (r *Sessions) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.session, nil
}

// Close discards a session.
func (r *Sessions) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := r.items[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.items, id)
	r.report()
	return nil
}

// Sweep discards sessions idle for longer than the TTL and returns how many were removed.
func (r *Sessions) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, e := range r.items {
		if e.lastSeen.Before(cutoff) {
			delete(r.items, id)
			removed++
		}
	}
	if removed > 0 {
		r.report()
		r.deps.logger.Info().Int("removed", removed).Int("open", len(r.items)).Msg("draft_sessions_swept")
	}
	return removed
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Janitor sweeps expired sessions every interval until ctx is done.
func (r *Sessions) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Sessions) report() {
	if obs.DraftSessions != nil {
		obs.DraftSessions.Set(float64(len(r.items)))
	}
}
