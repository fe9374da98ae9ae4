// AngelaMos | 2026
// oidc.go

package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/config"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

// OIDCExchanger runs the authorization-code flow against an OpenID Connect
// issuer (Google by default) and returns verified claims.
type OIDCExchanger struct {
	config   *oauth2.Config
	provider *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
	client   *http.Client
}

func NewOIDCExchanger(
	ctx context.Context,
	cfg config.OIDCConfig,
	httpClient *http.Client,
) (*OIDCExchanger, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("oidc: client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("oidc: redirect URL is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, errors.New("oidc: discovery URL is required")
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	discoverCtx := gooidc.ClientContext(ctx, httpClient)
	provider, err := gooidc.NewProvider(discoverCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := cfg.Scopes
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	return &OIDCExchanger{
		provider: provider,
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		client:   httpClient,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     provider.Endpoint(),
		},
	}, nil
}

// Begin returns the authorization URL plus the state and nonce the caller
// must keep until the callback arrives.
func (o *OIDCExchanger) Begin() (authURL, state, nonce string, err error) {
	state, err = core.GenerateSecureToken(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}

	nonce, err = core.GenerateSecureToken(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	authURL = o.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	return authURL, state, nonce, nil
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
}

// Exchange trades the authorization code for tokens and verifies the ID
// token signature, audience and nonce.
func (o *OIDCExchanger) Exchange(
	ctx context.Context,
	code, nonce string,
) (FederatedClaims, error) {
	if code == "" {
		return FederatedClaims{}, FederatedFailed("authorization code is required")
	}

	ctx = gooidc.ClientContext(ctx, o.client)

	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return FederatedClaims{}, fmt.Errorf("exchange code: %w", err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return FederatedClaims{}, FederatedFailed("missing id_token in token response")
	}

	idToken, err := o.verifier.Verify(ctx, rawID)
	if err != nil {
		return FederatedClaims{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return FederatedClaims{}, fmt.Errorf("parse id_token claims: %w", err)
	}

	if claims.Nonce != nonce {
		return FederatedClaims{}, FederatedFailed("invalid nonce")
	}

	if claims.Email == "" {
		if err := o.fillFromUserInfo(ctx, token, &claims); err != nil {
			return FederatedClaims{}, err
		}
	}

	return FederatedClaims{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func (o *OIDCExchanger) fillFromUserInfo(
	ctx context.Context,
	token *oauth2.Token,
	claims *googleClaims,
) error {
	info, err := o.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}

	var extra googleClaims
	if err := info.Claims(&extra); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}

	claims.Email = info.Email
	claims.EmailVerified = info.EmailVerified
	if claims.Name == "" {
		claims.Name = extra.Name
	}
	if claims.Picture == "" {
		claims.Picture = extra.Picture
	}

	return nil
}
