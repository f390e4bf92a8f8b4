package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/config"
	"github.com/fyrsmithlabs/transformd/internal/logging"
)

// Registry is the in-memory session store. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl           time.Duration
	sweepInterval time.Duration
	logger        *logging.Logger

	// onExpire, if set, is called for each session removed by the sweeper.
	onExpire func(id string)
}

// NewRegistry creates a Registry from the session config.
func NewRegistry(cfg config.SessionConfig, logger *logging.Logger) *Registry {
	ttl := cfg.TTL.Duration()
	if ttl <= 0 {
		ttl = time.Hour
	}
	sweep := cfg.SweepInterval.Duration()
	if sweep <= 0 {
		sweep = time.Minute
	}
	return &Registry{
		sessions:      make(map[string]*Session),
		ttl:           ttl,
		sweepInterval: sweep,
		logger:        logger,
	}
}

// OnExpire registers a callback invoked with the id of each swept session.
// Must be called before Start.
func (r *Registry) OnExpire(fn func(id string)) {
	r.onExpire = fn
}

// Create registers a new pending session and returns it.
func (r *Registry) Create(req Request, creds Credentials) *Session {
	now := time.Now()
	s := &Session{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Request:     req,
		Credentials: creds,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return s
}

// Get returns a copy of the session with the given id.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// UpdateStatus advances the session to next, enforcing forward-only
// transitions.
func (r *Registry) UpdateStatus(id string, next Status) error {
	return r.update(id, func(s *Session) error {
		if !s.Status.CanTransitionTo(next) {
			return &ErrInvalidTransition{From: s.Status, To: next}
		}
		s.Status = next
		return nil
	})
}

// Fail moves the session to failed and records the failure message.
func (r *Registry) Fail(id, message string) error {
	return r.update(id, func(s *Session) error {
		if !s.Status.CanTransitionTo(StatusFailed) {
			return &ErrInvalidTransition{From: s.Status, To: StatusFailed}
		}
		s.Status = StatusFailed
		s.Error = message
		return nil
	})
}

// SetBranch records the branch results were published to.
func (r *Registry) SetBranch(id, branch string) error {
	return r.update(id, func(s *Session) error {
		s.Branch = branch
		return nil
	})
}

func (r *Registry) update(id string, fn func(*Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(s); err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	return nil
}

// ExpireStale removes every session older than the TTL, regardless of
// status, and returns the removed ids.
func (r *Registry) ExpireStale(now time.Time) []string {
	r.mu.Lock()

	var expired []string
	for id, s := range r.sessions {
		if now.Sub(s.CreatedAt) > r.ttl {
			delete(r.sessions, id)
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		if r.onExpire != nil {
			r.onExpire(id)
		}
	}
	return expired
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Start runs the expiry sweeper until ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired := r.ExpireStale(now)
			if len(expired) > 0 {
				r.logger.Info(ctx, "expired stale sessions", zap.Int("count", len(expired)))
			}
		}
	}
}
