// AngelaMos | 2026
// directory.go

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

// Directory is the server-wide account store shared by every session.
type Directory struct {
	repo      Repository
	validator *validator.Validate
	logger    *slog.Logger
}

func NewDirectory(repo Repository, logger *slog.Logger) *Directory {
	return &Directory{
		repo:      repo,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

func (d *Directory) normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := d.validator.Var(email, "required,email,max=255"); err != nil {
		return "", errInvalidEmail
	}
	return email, nil
}

func (d *Directory) Register(
	ctx context.Context,
	email, password string,
) (*Identity, error) {
	email, err := d.normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if len(password) < MinPasswordLength {
		return nil, errWeakPassword
	}

	hash, err := core.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	acct := &Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: &hash,
	}

	if err := d.repo.Create(ctx, acct); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, errEmailInUse
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	d.logger.Info("account registered", "uid", acct.UID)
	return acct.toIdentity(), nil
}

// Authenticate verifies email and password. Unknown emails still pay the
// hashing cost so response timing does not reveal registered addresses.
func (d *Directory) Authenticate(
	ctx context.Context,
	email, password string,
) (*Identity, error) {
	email, err := d.normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	acct, err := d.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	var storedHash *string
	if acct != nil {
		storedHash = acct.PasswordHash
	}

	valid, newHash, verifyErr := core.VerifyPasswordTimingSafe(password, storedHash)
	if acct == nil {
		return nil, errUserNotFound
	}
	if verifyErr != nil || !valid {
		return nil, errWrongPassword
	}

	if newHash != "" {
		acct.PasswordHash = &newHash
		if err := d.repo.Update(ctx, acct); err != nil {
			d.logger.Warn("password rehash failed", "uid", acct.UID, "error", err)
		}
	}

	return acct.toIdentity(), nil
}

// LinkFederated maps verified external claims to an account: first by
// subject, then by verified email, otherwise a new password-less account.
func (d *Directory) LinkFederated(
	ctx context.Context,
	claims FederatedClaims,
) (*Identity, error) {
	if claims.Subject == "" {
		return nil, FederatedFailed("missing subject claim")
	}

	acct, err := d.repo.GetBySubject(ctx, claims.Subject)
	if err == nil {
		return acct.toIdentity(), nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("link federated: %w", err)
	}

	email, err := d.normalizeEmail(claims.Email)
	if err != nil {
		return nil, FederatedFailed("issuer did not provide a usable email")
	}

	subject := claims.Subject

	if claims.EmailVerified {
		acct, err = d.repo.GetByEmail(ctx, email)
		switch {
		case err == nil:
			acct.OIDCSubject = &subject
			if acct.DisplayName == "" {
				acct.DisplayName = claims.Name
			}
			if acct.PhotoURL == nil && claims.Picture != "" {
				picture := claims.Picture
				acct.PhotoURL = &picture
			}
			if err := d.repo.Update(ctx, acct); err != nil {
				return nil, fmt.Errorf("link federated: %w", err)
			}
			d.logger.Info("federated subject linked", "uid", acct.UID)
			return acct.toIdentity(), nil
		case !errors.Is(err, core.ErrNotFound):
			return nil, fmt.Errorf("link federated: %w", err)
		}
	}

	acct = &Account{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: claims.Name,
		OIDCSubject: &subject,
	}
	if claims.Picture != "" {
		picture := claims.Picture
		acct.PhotoURL = &picture
	}

	if err := d.repo.Create(ctx, acct); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, errEmailInUse
		}
		return nil, fmt.Errorf("link federated: %w", err)
	}

	d.logger.Info("federated account created", "uid", acct.UID)
	return acct.toIdentity(), nil
}

func (d *Directory) Lookup(ctx context.Context, uid string) (*Identity, error) {
	acct, err := d.repo.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("lookup: %w", err)
	}
	return acct.toIdentity(), nil
}

func (d *Directory) update(
	ctx context.Context,
	uid string,
	mutate func(acct *Account) error,
) (*Identity, error) {
	acct, err := d.repo.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	if err := mutate(acct); err != nil {
		return nil, err
	}

	if err := d.repo.Update(ctx, acct); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, errEmailInUse
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	return acct.toIdentity(), nil
}

func (d *Directory) UpdateDisplayName(
	ctx context.Context,
	uid, name string,
) (*Identity, error) {
	return d.update(ctx, uid, func(acct *Account) error {
		acct.DisplayName = strings.TrimSpace(name)
		return nil
	})
}

func (d *Directory) UpdateEmail(
	ctx context.Context,
	uid, email string,
) (*Identity, error) {
	normalized, err := d.normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return d.update(ctx, uid, func(acct *Account) error {
		acct.Email = normalized
		return nil
	})
}

func (d *Directory) UpdatePassword(
	ctx context.Context,
	uid, password string,
) (*Identity, error) {
	if len(password) < MinPasswordLength {
		return nil, errWeakPassword
	}

	hash, err := core.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	return d.update(ctx, uid, func(acct *Account) error {
		acct.PasswordHash = &hash
		return nil
	})
}

func (d *Directory) UpdatePhotoURL(
	ctx context.Context,
	uid, url string,
) (*Identity, error) {
	return d.update(ctx, uid, func(acct *Account) error {
		acct.PhotoURL = &url
		return nil
	})
}

var _ Accounts = (*Directory)(nil)
