// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/config"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/mocks"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/testutil"
)

type memFlows struct {
	mu    sync.Mutex
	flows map[string]FederatedFlow
}

func (m *memFlows) Save(_ context.Context, f *FederatedFlow, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[f.State] = *f
	return nil
}

func (m *memFlows) Take(_ context.Context, state string) (*FederatedFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[state]
	if !ok {
		return nil, fmt.Errorf("take flow: %w", core.ErrNotFound)
	}
	delete(m.flows, state)
	return &f, nil
}

type fakeExchanger struct {
	claims identity.FederatedClaims
	nonces []string
}

func (f *fakeExchanger) Begin() (string, string, string, error) {
	return "https://accounts.example.com/auth?state=st-1", "st-1", "nonce-1", nil
}

func (f *fakeExchanger) Exchange(
	_ context.Context,
	_ string,
	nonce string,
) (identity.FederatedClaims, error) {
	f.nonces = append(f.nonces, nonce)
	return f.claims, nil
}

type authFixture struct {
	svc      *Service
	registry *session.Registry
	tokens   *JWTManager
	dir      *identity.Directory
}

func newAuthFixture(t *testing.T, oidc Exchanger) *authFixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	dir := identity.NewDirectory(testutil.NewMemAccounts(), logger)
	records := testutil.NewMemStore()

	store := mocks.NewMockSessionStore(gomock.NewController(t))
	store.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	store.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	registry := session.NewRegistry(
		store,
		func() session.Provider { return identity.NewClient(dir) },
		session.Options{
			Resolver: entitlement.NewManager(records, records, logger),
			Profiles: records,
			Logger:   logger,
		},
		config.SessionConfig{IdleTTL: time.Hour, SweepInterval: time.Minute},
	)

	tokens, err := NewJWTManager(testJWTConfig(t))
	require.NoError(t, err)

	return &authFixture{
		svc:      NewService(registry, tokens, &memFlows{flows: map[string]FederatedFlow{}}, oidc, logger),
		registry: registry,
		tokens:   tokens,
		dir:      dir,
	}
}

func TestRegisterIssuesWorkingToken(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, RegisterRequest{
		Email:       "ana@example.com",
		Password:    "hunter22",
		DisplayName: "Ana",
	})
	require.NoError(t, err)

	assert.Equal(t, session.StateReady, resp.Session.State)
	assert.Equal(t, role.Basic, resp.Session.Role)
	assert.NotEmpty(t, resp.Session.Screens)

	sid, err := f.tokens.VerifySessionToken(ctx, resp.Token.Token)
	require.NoError(t, err)

	sess, err := f.registry.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "Ana", sess.Snapshot().CurrentUser.DisplayName)
}

func TestLoginFailureDiscardsSession(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	_, err := f.dir.Register(ctx, "ana@example.com", "hunter22")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "bad-pass"})
	assert.Equal(t, identity.CodeWrongPassword, identity.CodeOf(err))
	assert.Zero(t, f.registry.Len())

	resp, err := f.svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.True(t, resp.Session.Authenticated())
	assert.Equal(t, 1, f.registry.Len())
}

type failingIssuer struct{}

func (failingIssuer) CreateSessionToken(string) (*SessionToken, error) {
	return nil, errors.New("signing key unavailable")
}

func TestTokenFailureDiscardsSession(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	svc := NewService(
		f.registry,
		failingIssuer{},
		&memFlows{flows: map[string]FederatedFlow{}},
		nil,
		slog.New(slog.DiscardHandler),
	)

	resp, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22"})
	require.ErrorContains(t, err, "issue session token")
	assert.Nil(t, resp)
	assert.Zero(t, f.registry.Len())
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Password: "hunter22"})
	require.NoError(t, err)

	sid, err := f.tokens.VerifySessionToken(ctx, resp.Token.Token)
	require.NoError(t, err)
	sess, err := f.registry.Get(ctx, sid)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, sess))
	assert.Zero(t, f.registry.Len())
	assert.Equal(t, session.StateUnauthenticated, sess.Snapshot().State)
}

func TestGoogleDisabled(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, err := f.svc.BeginGoogle(context.Background())
	assert.Equal(t, identity.CodeFederatedDisabled, identity.CodeOf(err))

	_, err = f.svc.CompleteGoogle(context.Background(), GoogleCallbackRequest{Code: "c", State: "s"})
	assert.Equal(t, identity.CodeFederatedDisabled, identity.CodeOf(err))
}

func TestGoogleFlow(t *testing.T) {
	ex := &fakeExchanger{claims: identity.FederatedClaims{
		Subject:       "g-1",
		Email:         "ana@gmail.com",
		EmailVerified: true,
		Name:          "Ana",
	}}
	f := newAuthFixture(t, ex)
	ctx := context.Background()

	begin, err := f.svc.BeginGoogle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "st-1", begin.State)

	resp, err := f.svc.CompleteGoogle(ctx, GoogleCallbackRequest{Code: "code", State: "st-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"nonce-1"}, ex.nonces)
	require.NotNil(t, resp.Session.CurrentUser)
	assert.Equal(t, identity.ProviderGoogle, resp.Session.CurrentUser.Provider)
	assert.Equal(t, role.Basic, resp.Session.Role)

	_, err = f.svc.CompleteGoogle(ctx, GoogleCallbackRequest{Code: "code", State: "st-1"})
	assert.Equal(t, identity.CodeFederatedFailed, identity.CodeOf(err))
}

func TestGoogleFlowExpired(t *testing.T) {
	f := newAuthFixture(t, &fakeExchanger{})
	ctx := context.Background()

	_, err := f.svc.BeginGoogle(ctx)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(flowTTL + time.Minute) }

	_, err = f.svc.CompleteGoogle(ctx, GoogleCallbackRequest{Code: "code", State: "st-1"})
	assert.Equal(t, identity.CodeFederatedFailed, identity.CodeOf(err))
}
