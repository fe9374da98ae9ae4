// AngelaMos | 2026
// session.go

package session

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/blob"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateResolving       State = "resolving"
	StateReady           State = "ready"
	StateBanned          State = "banned"
)

const photoPrefix = "profile_pictures"

// Provider is the identity surface a Session drives. identity.Client
// satisfies it; Restore is used when a session is rehydrated.
type Provider interface {
	identity.Provider
	Restore(ctx context.Context, uid string) (*identity.Identity, error)
}

type Resolver interface {
	Resolve(ctx context.Context, id identity.Identity) (*entitlement.Resolution, error)
	Bootstrap(ctx context.Context, id identity.Identity) (*user.Record, error)
}

type ProfileWriter interface {
	UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (*user.Record, error)
}

// Snapshot is the read-only view handed to handlers and subscribers.
type Snapshot struct {
	ID            string             `json:"-"`
	State         State              `json:"state"`
	CurrentUser   *identity.Identity `json:"current_user"`
	Role          role.Role          `json:"role"`
	Status        user.Status        `json:"status"`
	RoleExpiresAt *time.Time         `json:"role_expires_at,omitempty"`
	Loading       bool               `json:"loading"`
	Notice        string             `json:"notice,omitempty"`
	ResolvedAt    time.Time          `json:"resolved_at"`
}

func (s Snapshot) Authenticated() bool {
	return s.CurrentUser != nil
}

type ProfileChanges struct {
	DisplayName *string
	Email       *string
	Password    *string
}

type Photo struct {
	Name        string
	ContentType string
	Data        []byte
}

type Options struct {
	Resolver        Resolver
	Profiles        ProfileWriter
	Blobs           blob.Store
	Logger          *slog.Logger
	Clock           func() time.Time
	RevalidateAfter time.Duration

	// OnIdentity is called before resolution whenever the signed-in uid
	// changes. The registry uses it to persist the session record.
	OnIdentity func(ctx context.Context, sid string, id *identity.Identity)
}

type Session struct {
	id       string
	provider Provider
	opts     Options

	mu          sync.Mutex
	snap        Snapshot
	epoch       uint64
	subscribers map[uint64]func(Snapshot)
	nextSub     uint64
	unsubscribe func()

	lastUsed atomic.Int64
}

func New(id string, provider Provider, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:          id,
		provider:    provider,
		opts:        opts,
		snap:        Snapshot{ID: id, State: StateLoading, Loading: true},
		subscribers: make(map[uint64]func(Snapshot)),
	}
	s.Touch()
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Start subscribes to the provider. The provider reports the current
// identity immediately, which moves the session out of loading.
func (s *Session) Start(ctx context.Context) {
	unsubscribe := s.provider.OnIdentityChange(ctx, s.handleIdentity)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// Close detaches from the provider and drops every subscriber. Resolutions
// still in flight are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.subscribers = make(map[uint64]func(Snapshot))
	s.epoch++
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySnapshot()
}

// ConsumeNotice returns the pending one-time notice and clears it.
func (s *Session) ConsumeNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	notice := s.snap.Notice
	s.snap.Notice = ""
	return notice
}

// Subscribe registers fn for every snapshot change until cancel is called.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) Touch() {
	s.lastUsed.Store(s.opts.Clock().UnixNano())
}

func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) Signup(
	ctx context.Context,
	email, password, displayName string,
) (*identity.Identity, error) {
	id, err := s.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName != "" {
		if err := s.provider.UpdateDisplayName(ctx, displayName); err != nil {
			return nil, err
		}
		id.DisplayName = displayName
	}

	if _, err := s.opts.Resolver.Bootstrap(ctx, *id); err != nil {
		return nil, err
	}

	s.syncIdentity()
	return id, nil
}

func (s *Session) Login(
	ctx context.Context,
	email, password string,
) (*identity.Identity, error) {
	return s.provider.SignIn(ctx, email, password)
}

func (s *Session) LoginWithGoogle(
	ctx context.Context,
	claims identity.FederatedClaims,
) (*identity.Identity, error) {
	return s.provider.SignInFederated(ctx, claims)
}

func (s *Session) Logout(ctx context.Context) error {
	return s.provider.SignOut(ctx)
}

// UpdateProfile uploads the photo first, then applies every identity
// change, and only then writes the user record. A failing step leaves the
// record untouched.
func (s *Session) UpdateProfile(
	ctx context.Context,
	changes ProfileChanges,
	photo *Photo,
) (*user.Record, error) {
	cur := s.provider.Current()
	if cur == nil {
		return nil, fmt.Errorf("update profile: %w", core.ErrNotAuthenticated)
	}

	var upd user.ProfileUpdate

	if photo != nil {
		p, err := PhotoPath(cur.UID, photo.Name)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w: %w", core.ErrInvalidInput, err)
		}
		ref, err := s.opts.Blobs.Upload(ctx, p, photo.Data, photo.ContentType)
		if err != nil {
			return nil, err
		}
		url := s.opts.Blobs.PublicURL(ref)
		if err := s.provider.UpdatePhotoURL(ctx, url); err != nil {
			return nil, err
		}
		upd.PhotoURL = &url
	}

	if changes.DisplayName != nil {
		name := strings.TrimSpace(*changes.DisplayName)
		if err := s.provider.UpdateDisplayName(ctx, name); err != nil {
			return nil, err
		}
		upd.DisplayName = &name
	}

	if changes.Email != nil && !strings.EqualFold(*changes.Email, cur.Email) {
		if err := s.provider.UpdateEmail(ctx, *changes.Email); err != nil {
			return nil, err
		}
		// The record keeps the provider's normalized form.
		email := *changes.Email
		if updated := s.provider.Current(); updated != nil {
			email = updated.Email
		}
		upd.Email = &email
	}

	if changes.Password != nil && *changes.Password != "" {
		if err := s.provider.UpdatePassword(ctx, *changes.Password); err != nil {
			return nil, err
		}
	}

	rec, err := s.opts.Profiles.UpdateProfile(ctx, cur.UID, upd)
	if err != nil {
		return nil, err
	}

	s.syncIdentity()
	return rec, nil
}

// Refresh re-runs resolution for the current identity.
func (s *Session) Refresh(ctx context.Context) Snapshot {
	s.handleIdentity(ctx, s.provider.Current())
	return s.Snapshot()
}

// EnsureFresh re-resolves when revalidation is enabled and the last
// resolution is older than the configured window.
func (s *Session) EnsureFresh(ctx context.Context) {
	if s.opts.RevalidateAfter <= 0 {
		return
	}

	s.mu.Lock()
	state := s.snap.State
	resolvedAt := s.snap.ResolvedAt
	s.mu.Unlock()

	if state != StateReady && state != StateBanned {
		return
	}
	if s.opts.Clock().Sub(resolvedAt) < s.opts.RevalidateAfter {
		return
	}

	s.Refresh(ctx)
}

func (s *Session) handleIdentity(ctx context.Context, id *identity.Identity) {
	s.mu.Lock()
	var prevUID, nextUID string
	if s.snap.CurrentUser != nil {
		prevUID = s.snap.CurrentUser.UID
	}
	if id != nil {
		nextUID = id.UID
	}
	s.mu.Unlock()

	if prevUID != nextUID && s.opts.OnIdentity != nil {
		s.opts.OnIdentity(ctx, s.id, id)
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch

	if id == nil {
		s.snap = Snapshot{
			ID:         s.id,
			State:      StateUnauthenticated,
			ResolvedAt: s.opts.Clock(),
		}
		s.broadcastLocked()
		return
	}

	s.snap = Snapshot{
		ID:          s.id,
		State:       StateResolving,
		CurrentUser: id,
		Loading:     true,
		Notice:      s.snap.Notice,
	}
	s.broadcastLocked()

	res, err := s.opts.Resolver.Resolve(ctx, *id)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}

	next := Snapshot{
		ID:          s.id,
		State:       StateReady,
		CurrentUser: id,
		Role:        role.None,
		Notice:      s.snap.Notice,
		ResolvedAt:  s.opts.Clock(),
	}

	switch {
	case err != nil:
		s.opts.Logger.Warn("session resolution failed",
			"session_id", s.id,
			"user_id", id.UID,
			"error", err,
		)
	case res.Status == user.StatusBanned:
		next.State = StateBanned
		next.Status = res.Status
	default:
		next.Role = res.Role
		next.Status = res.Status
		if res.Record != nil {
			next.RoleExpiresAt = res.Record.RoleExpiresAt
		}
	}
	if err == nil && res.Notice != "" {
		next.Notice = res.Notice
	}

	s.snap = next
	s.broadcastLocked()
}

// broadcastLocked must be called with mu held; it releases mu before
// invoking subscribers.
func (s *Session) broadcastLocked() {
	snap := s.copySnapshot()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// syncIdentity refreshes the cached identity after a profile edit without
// re-running resolution.
func (s *Session) syncIdentity() {
	cur := s.provider.Current()

	s.mu.Lock()
	if cur == nil || s.snap.CurrentUser == nil || s.snap.CurrentUser.UID != cur.UID {
		s.mu.Unlock()
		return
	}
	s.snap.CurrentUser = cur
	s.broadcastLocked()
}

func (s *Session) copySnapshot() Snapshot {
	snap := s.snap
	if snap.CurrentUser != nil {
		u := *snap.CurrentUser
		snap.CurrentUser = &u
	}
	if snap.RoleExpiresAt != nil {
		t := *snap.RoleExpiresAt
		snap.RoleExpiresAt = &t
	}
	return snap
}

// PhotoPath is the blob key for a profile picture.
func PhotoPath(uid, fileName string) (string, error) {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "", blob.ErrInvalidPath
	}
	return blob.CleanPath(photoPrefix + "/" + uid + "/" + name)
}
