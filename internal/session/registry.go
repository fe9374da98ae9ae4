// AngelaMos | 2026
// registry.go

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/config"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
)

const touchInterval = time.Minute

// Registry owns the live sessions of this process.
type Registry struct {
	store       Store
	newProvider func() Provider
	opts        Options
	idleTTL     time.Duration
	sweepEvery  time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	touched  map[string]time.Time
	group    singleflight.Group
}

func NewRegistry(
	store Store,
	newProvider func() Provider,
	opts Options,
	cfg config.SessionConfig,
) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RevalidateAfter == 0 {
		opts.RevalidateAfter = cfg.RevalidateAfter
	}

	r := &Registry{
		store:       store,
		newProvider: newProvider,
		idleTTL:     cfg.IdleTTL,
		sweepEvery:  cfg.SweepInterval,
		logger:      opts.Logger,
		now:         opts.Clock,
		sessions:    make(map[string]*Session),
		touched:     make(map[string]time.Time),
	}

	opts.OnIdentity = r.persist
	r.opts = opts
	return r
}

// Create starts a fresh session with no identity.
func (r *Registry) Create(ctx context.Context) *Session {
	s := New(uuid.NewString(), r.newProvider(), r.opts)
	s.Start(ctx)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.touched[s.ID()] = r.now()
	r.mu.Unlock()

	return s
}

// Get returns the live session for sid, rehydrating it from the store when
// this process has not seen it. Concurrent rehydrations of one sid share a
// single lookup.
func (r *Registry) Get(ctx context.Context, sid string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sid]
	r.mu.RUnlock()

	if ok {
		s.Touch()
		r.refreshTTL(ctx, sid)
		return s, nil
	}

	v, err, _ := r.group.Do(sid, func() (any, error) {
		return r.rehydrate(context.WithoutCancel(ctx), sid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) rehydrate(ctx context.Context, sid string) (*Session, error) {
	r.mu.RLock()
	existing, ok := r.sessions[sid]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	uid, err := r.store.Load(ctx, sid)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sid, core.ErrNotAuthenticated)
	}
	if err != nil {
		return nil, err
	}

	provider := r.newProvider()
	s := New(sid, provider, r.opts)
	s.Start(ctx)

	if _, err := provider.Restore(ctx, uid); err != nil {
		s.Close()
		if identity.CodeOf(err) == identity.CodeUserNotFound {
			if delErr := r.store.Delete(ctx, sid); delErr != nil {
				r.logger.Warn("drop orphaned session record failed",
					"session_id", sid,
					"error", delErr,
				)
			}
			return nil, fmt.Errorf("session %s: %w", sid, core.ErrNotAuthenticated)
		}
		return nil, core.StorageError("rehydrate session", err)
	}

	r.mu.Lock()
	r.sessions[sid] = s
	r.touched[sid] = r.now()
	r.mu.Unlock()

	r.logger.Debug("session rehydrated", "session_id", sid, "user_id", uid)
	return s, nil
}

// Destroy signs the session out and forgets it everywhere.
func (r *Registry) Destroy(ctx context.Context, sid string) error {
	r.mu.Lock()
	s, ok := r.sessions[sid]
	delete(r.sessions, sid)
	delete(r.touched, sid)
	r.mu.Unlock()

	if ok {
		s.Close()
	}

	return r.store.Delete(ctx, sid)
}

// Sweep evicts sessions idle longer than the idle TTL from memory. Their
// store records expire on their own.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*Session
	for sid, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			evicted = append(evicted, s)
			delete(r.sessions, sid)
			delete(r.touched, sid)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}

	if len(evicted) > 0 {
		r.logger.Debug("idle sessions evicted", "count", len(evicted))
	}
	return len(evicted)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run sweeps on an interval until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.touched = make(map[string]time.Time)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) persist(ctx context.Context, sid string, id *identity.Identity) {
	var err error
	if id == nil {
		err = r.store.Delete(ctx, sid)
	} else {
		err = r.store.Save(ctx, sid, id.UID, r.idleTTL)
	}
	if err != nil {
		r.logger.Warn("persist session record failed",
			"session_id", sid,
			"error", err,
		)
	}
}

func (r *Registry) refreshTTL(ctx context.Context, sid string) {
	now := r.now()

	r.mu.Lock()
	last, ok := r.touched[sid]
	if ok && now.Sub(last) < touchInterval {
		r.mu.Unlock()
		return
	}
	r.touched[sid] = now
	r.mu.Unlock()

	if err := r.store.Touch(ctx, sid, r.idleTTL); err != nil {
		r.logger.Warn("refresh session ttl failed", "session_id", sid, "error", err)
	}
}
