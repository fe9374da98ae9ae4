// AngelaMos | 2026
// repository.go

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

// Account is the directory row behind an Identity.
type Account struct {
	UID          string    `db:"uid"`
	Email        string    `db:"email"`
	PasswordHash *string   `db:"password_hash"`
	DisplayName  string    `db:"display_name"`
	PhotoURL     *string   `db:"photo_url"`
	OIDCSubject  *string   `db:"oidc_subject"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (a *Account) toIdentity() *Identity {
	id := &Identity{
		UID:         a.UID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Provider:    ProviderPassword,
	}
	if a.PhotoURL != nil {
		id.PhotoURL = *a.PhotoURL
	}
	if a.PasswordHash == nil && a.OIDCSubject != nil {
		id.Provider = ProviderGoogle
	}
	return id
}

type Repository interface {
	Create(ctx context.Context, acct *Account) error
	GetByUID(ctx context.Context, uid string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetBySubject(ctx context.Context, subject string) (*Account, error)
	Update(ctx context.Context, acct *Account) error
}

const accountColumns = `uid, email, password_hash, display_name, photo_url,
		       oidc_subject, created_at, updated_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, acct *Account) error {
	query := `
		INSERT INTO accounts (uid, email, password_hash, display_name, photo_url, oidc_subject)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		acct.UID,
		acct.Email,
		acct.PasswordHash,
		acct.DisplayName,
		acct.PhotoURL,
		acct.OIDCSubject,
	).Scan(&acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (r *repository) GetByUID(ctx context.Context, uid string) (*Account, error) {
	return r.getOne(ctx, "get account", `uid = $1`, uid)
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*Account, error) {
	return r.getOne(ctx, "get account by email", `email = $1`, email)
}

func (r *repository) GetBySubject(
	ctx context.Context,
	subject string,
) (*Account, error) {
	return r.getOne(ctx, "get account by subject", `oidc_subject = $1`, subject)
}

func (r *repository) getOne(
	ctx context.Context,
	op, where string,
	arg any,
) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where

	var acct Account
	err := r.db.GetContext(ctx, &acct, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &acct, nil
}

func (r *repository) Update(ctx context.Context, acct *Account) error {
	query := `
		UPDATE accounts
		SET email = $2, password_hash = $3, display_name = $4,
		    photo_url = $5, oidc_subject = $6, updated_at = NOW()
		WHERE uid = $1
		RETURNING updated_at`

	err := r.db.GetContext(ctx, &acct.UpdatedAt, query,
		acct.UID,
		acct.Email,
		acct.PasswordHash,
		acct.DisplayName,
		acct.PhotoURL,
		acct.OIDCSubject,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update account: %w", core.ErrNotFound)
	}
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("update account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("update account: %w", err)
	}

	return nil
}
