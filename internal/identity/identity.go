// AngelaMos | 2026
// identity.go

package identity

import (
	"context"
)

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Identity is the authenticated principal as reported by the provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Provider    string `json:"provider"`
}

// FederatedClaims are the verified claims returned by an external issuer.
type FederatedClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Listener observes identity changes. It is called once on subscription
// with the current identity (nil when signed out) and again after every
// sign-in and sign-out.
type Listener func(ctx context.Context, id *Identity)

// Provider is the per-session view of the identity service.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignInFederated(ctx context.Context, claims FederatedClaims) (*Identity, error)
	SignOut(ctx context.Context) error
	Current() *Identity
	UpdateDisplayName(ctx context.Context, name string) error
	UpdateEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, password string) error
	UpdatePhotoURL(ctx context.Context, url string) error
	OnIdentityChange(ctx context.Context, fn Listener) (unsubscribe func())
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
