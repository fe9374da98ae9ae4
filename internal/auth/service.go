// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
)

const flowTTL = 10 * time.Minute

// Exchanger runs the federated authorization-code flow.
type Exchanger interface {
	Begin() (authURL, state, nonce string, err error)
	Exchange(ctx context.Context, code, nonce string) (identity.FederatedClaims, error)
}

type TokenIssuer interface {
	CreateSessionToken(sid string) (*SessionToken, error)
}

type Service struct {
	registry *session.Registry
	tokens   TokenIssuer
	flows    FlowRepository
	oidc     Exchanger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the auth flows. oidc may be nil, which disables
// federated sign-in.
func NewService(
	registry *session.Registry,
	tokens TokenIssuer,
	flows FlowRepository,
	oidc Exchanger,
	logger *slog.Logger,
) *Service {
	return &Service{
		registry: registry,
		tokens:   tokens,
		flows:    flows,
		oidc:     oidc,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return s.withNewSession(ctx, func(sess *session.Session) error {
		_, err := sess.Signup(ctx, req.Email, req.Password, req.DisplayName)
		return err
	})
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	return s.withNewSession(ctx, func(sess *session.Session) error {
		_, err := sess.Login(ctx, req.Email, req.Password)
		return err
	})
}

func (s *Service) BeginGoogle(ctx context.Context) (*GoogleBeginResponse, error) {
	if s.oidc == nil {
		return nil, identity.FederatedDisabled()
	}

	authURL, state, nonce, err := s.oidc.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin federated login: %w", err)
	}

	flow := &FederatedFlow{State: state, Nonce: nonce, CreatedAt: s.now()}
	if err := s.flows.Save(ctx, flow, flowTTL); err != nil {
		return nil, err
	}

	return &GoogleBeginResponse{AuthURL: authURL, State: state}, nil
}

func (s *Service) CompleteGoogle(
	ctx context.Context,
	req GoogleCallbackRequest,
) (*AuthResponse, error) {
	if s.oidc == nil {
		return nil, identity.FederatedDisabled()
	}

	flow, err := s.flows.Take(ctx, req.State)
	if errors.Is(err, core.ErrNotFound) {
		return nil, identity.FederatedFailed("unknown or reused state")
	}
	if err != nil {
		return nil, err
	}
	if flow.Expired(s.now(), flowTTL) {
		return nil, identity.FederatedFailed("sign-in attempt expired")
	}

	claims, err := s.oidc.Exchange(ctx, req.Code, flow.Nonce)
	if err != nil {
		if identity.CodeOf(err) != "" {
			return nil, err
		}
		s.logger.Warn("federated exchange failed", "error", err)
		return nil, identity.FederatedFailed("could not verify the sign-in with the provider")
	}

	return s.withNewSession(ctx, func(sess *session.Session) error {
		_, err := sess.LoginWithGoogle(ctx, claims)
		return err
	})
}

// Logout signs the session out and forgets it so its token stops working.
func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	if err := sess.Logout(ctx); err != nil {
		return err
	}
	return s.registry.Destroy(ctx, sess.ID())
}

// View is the session snapshot with the one-time notice consumed.
func (s *Service) View(sess *session.Session) SessionResponse {
	snap := sess.Snapshot()
	snap.Notice = sess.ConsumeNotice()
	return ToSessionResponse(snap)
}

func (s *Service) withNewSession(
	ctx context.Context,
	signIn func(sess *session.Session) error,
) (*AuthResponse, error) {
	sess := s.registry.Create(ctx)

	if err := signIn(sess); err != nil {
		s.discard(ctx, sess)
		return nil, err
	}

	token, err := s.tokens.CreateSessionToken(sess.ID())
	if err != nil {
		s.discard(ctx, sess)
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	return &AuthResponse{Token: token, Session: s.View(sess)}, nil
}

// discard drops a session no client will ever hold a token for.
func (s *Service) discard(ctx context.Context, sess *session.Session) {
	if err := s.registry.Destroy(ctx, sess.ID()); err != nil {
		s.logger.Warn("discard failed session", "session_id", sess.ID(), "error", err)
	}
}
