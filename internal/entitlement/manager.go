// AngelaMos | 2026
// manager.go

package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/bonuscode"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const tracerName = "github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"

// ExpiredNotice is shown once to the user whose grant was just reset.
const ExpiredNotice = "your role expired; access was reset to E-BASIC"

var (
	ErrInvalidCode   = errors.New("invalid bonus code")
	ErrExhaustedCode = errors.New("bonus code has no uses left")

	// ErrBanned matches core.ErrForbidden as well.
	ErrBanned = fmt.Errorf("account is banned: %w", core.ErrForbidden)
)

// Resolution is the outcome of turning an identity into gating state. Role
// is the effective role: None for banned users regardless of the stored one.
type Resolution struct {
	Record *user.Record
	Role   role.Role
	Status user.Status
	Notice string
}

type Grant struct {
	Role         role.Role
	DurationDays int
	ExpiresAt    time.Time
}

type Manager struct {
	users  UserStore
	tx     TxRunner
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(
	users UserStore,
	tx TxRunner,
	logger *slog.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		users:  users,
		tx:     tx,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bootstrap creates the default record for id, or merges missing profile
// fields into an existing one. Safe to call concurrently for the same uid.
func (m *Manager) Bootstrap(
	ctx context.Context,
	id identity.Identity,
) (*user.Record, error) {
	if id.UID == "" {
		return nil, fmt.Errorf("bootstrap: %w", core.ErrNotAuthenticated)
	}

	rec := &user.Record{
		ID:          id.UID,
		Email:       strings.ToLower(id.Email),
		DisplayName: id.DisplayName,
		Role:        role.Default,
		Status:      user.StatusActive,
	}
	if id.PhotoURL != "" {
		photo := id.PhotoURL
		rec.PhotoURL = &photo
	}

	stored, err := m.users.Bootstrap(ctx, rec)
	if err != nil {
		return nil, core.StorageError("bootstrap", err)
	}

	return stored, nil
}

// Resolve loads (or bootstraps) the record for id, downgrades a lapsed grant
// and applies the ban override.
func (m *Manager) Resolve(
	ctx context.Context,
	id identity.Identity,
) (res *Resolution, err error) {
	ctx, span := core.StartSpan(ctx, tracerName, "entitlement.Resolve",
		attribute.String("user.id", id.UID),
	)
	defer func() { core.EndSpan(span, err) }()

	if id.UID == "" {
		return nil, fmt.Errorf("resolve: %w", core.ErrNotAuthenticated)
	}

	rec, err := m.users.GetByID(ctx, id.UID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		rec, err = m.Bootstrap(ctx, id)
		if err != nil {
			return nil, err
		}
		m.logger.Info("user record bootstrapped", "user_id", id.UID)
	case err != nil:
		return nil, core.StorageError("resolve", err)
	}

	var notice string
	now := m.now()

	if rec.RoleExpired(now) {
		reset, err := m.users.ResetExpiredRole(ctx, id.UID, now)
		if err != nil {
			return nil, core.StorageError("reset expired role", err)
		}
		if reset {
			notice = ExpiredNotice
			m.logger.Info("expired role reset",
				"user_id", id.UID,
				"previous_role", rec.Role,
				"expired_at", rec.RoleExpiresAt,
			)
		}

		rec, err = m.users.GetByID(ctx, id.UID)
		if err != nil {
			return nil, core.StorageError("resolve", err)
		}
	}

	effective := rec.Role
	if rec.IsBanned() {
		effective = role.None
	}

	span.SetAttributes(
		attribute.String("user.role", effective.String()),
		attribute.String("user.status", string(rec.Status)),
	)

	return &Resolution{
		Record: rec,
		Role:   effective,
		Status: rec.Status,
		Notice: notice,
	}, nil
}

// Redeem applies code to userID. The code lookup, use-count decrement and
// role grant commit together or not at all; both rows stay locked for the
// duration so concurrent redemptions serialize.
func (m *Manager) Redeem(
	ctx context.Context,
	code, userID string,
) (grant *Grant, err error) {
	ctx, span := core.StartSpan(ctx, tracerName, "entitlement.Redeem",
		attribute.String("user.id", userID),
	)
	defer func() { core.EndSpan(span, err) }()

	if userID == "" {
		return nil, fmt.Errorf("redeem: %w", core.ErrNotAuthenticated)
	}

	normalized := bonuscode.Normalize(code)
	if normalized == "" {
		return nil, ErrInvalidCode
	}

	err = m.tx.InTx(ctx, func(users TxUserStore, codes TxCodeStore) error {
		c, err := codes.GetByCodeForUpdate(ctx, normalized)
		if errors.Is(err, core.ErrNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return err
		}

		if c.Exhausted() {
			return ErrExhaustedCode
		}

		rec, err := users.GetByIDForUpdate(ctx, userID)
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("redeem: no user record: %w", core.ErrNotAuthenticated)
		}
		if err != nil {
			return err
		}
		if rec.IsBanned() {
			return ErrBanned
		}

		now := m.now()
		base := now
		if rec.RoleExpiresAt != nil && rec.RoleExpiresAt.After(now) {
			base = *rec.RoleExpiresAt
		}
		expiresAt := base.Add(c.Duration())

		if err := users.GrantRole(ctx, userID, c.Role, expiresAt); err != nil {
			return err
		}

		if err := codes.DecrementUses(ctx, c.ID); err != nil {
			if errors.Is(err, bonuscode.ErrNoUsesLeft) {
				return ErrExhaustedCode
			}
			return err
		}

		grant = &Grant{
			Role:         c.Role,
			DurationDays: c.DurationDays,
			ExpiresAt:    expiresAt,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCode) ||
			errors.Is(err, ErrExhaustedCode) ||
			errors.Is(err, ErrBanned) ||
			errors.Is(err, core.ErrNotAuthenticated) {
			return nil, err
		}
		return nil, core.StorageError("redeem", err)
	}

	m.logger.Info("bonus code redeemed",
		"user_id", userID,
		"trace_id", core.TraceIDFromContext(ctx),
		"role", grant.Role,
		"expires_at", grant.ExpiresAt,
	)

	return grant, nil
}

// AdminUpdate overwrites role, status and expiration. The admin is trusted:
// only the labels themselves are validated.
func (m *Manager) AdminUpdate(
	ctx context.Context,
	userID string,
	upd user.EntitlementUpdate,
) (*user.Record, error) {
	if err := upd.Validate(); err != nil {
		return nil, fmt.Errorf("admin update: %w: %w", core.ErrInvalidInput, err)
	}

	rec, err := m.users.UpdateEntitlement(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, core.StorageError("admin update", err)
	}

	m.logger.Info("entitlement updated by admin",
		"user_id", userID,
		"role", upd.Role,
		"status", upd.Status,
		"role_expires_at", upd.RoleExpiresAt,
	)

	return rec, nil
}

// Ban marks userID banned, keeping the stored role. Admin accounts cannot
// be banned.
func (m *Manager) Ban(ctx context.Context, userID string) (*user.Record, error) {
	rec, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, core.StorageError("ban", err)
	}

	if rec.IsAdmin() {
		return nil, fmt.Errorf("ban: %w", core.ErrForbidden)
	}

	if rec.IsBanned() {
		return rec, nil
	}

	return m.AdminUpdate(ctx, userID, user.EntitlementUpdate{
		Role:          rec.Role,
		Status:        user.StatusBanned,
		RoleExpiresAt: rec.RoleExpiresAt,
	})
}

var _ user.EntitlementAdmin = (*Manager)(nil)
