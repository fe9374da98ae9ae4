// AngelaMos | 2026
// registry_test.go

package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/config"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/mocks"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const idleTTL = 30 * time.Minute

func newRegistry(t *testing.T, h *harness) (*session.Registry, *mocks.MockSessionStore) {
	t.Helper()

	store := mocks.NewMockSessionStore(gomock.NewController(t))
	reg := session.NewRegistry(
		store,
		func() session.Provider { return identity.NewClient(h.directory) },
		h.options(),
		config.SessionConfig{
			IdleTTL:       idleTTL,
			SweepInterval: time.Minute,
		},
	)
	return reg, store
}

func TestRegistryCreateStartsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	reg, _ := newRegistry(t, h)

	s := reg.Create(context.Background())

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, session.StateUnauthenticated, s.Snapshot().State)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryPersistsSignInAndSignOut(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	reg, store := newRegistry(t, h)
	ctx := context.Background()

	s := reg.Create(ctx)

	gomock.InOrder(
		store.EXPECT().Save(gomock.Any(), s.ID(), uid, idleTTL).Return(nil),
		store.EXPECT().Delete(gomock.Any(), s.ID()).Return(nil),
	)

	_, err := s.Login(ctx, "bia@example.com", password)
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))
}

func TestRegistryPersistFailureDoesNotBlockLogin(t *testing.T) {
	h := newHarness(t)
	h.account("bia@example.com")
	reg, store := newRegistry(t, h)
	ctx := context.Background()

	store.EXPECT().
		Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(core.StorageError("save session", errors.New("redis down")))

	s := reg.Create(ctx)
	_, err := s.Login(ctx, "bia@example.com", password)
	require.NoError(t, err)
	assert.Equal(t, session.StateReady, s.Snapshot().State)
}

func TestRegistryGetLiveSessionRefreshesTTL(t *testing.T) {
	h := newHarness(t)
	reg, store := newRegistry(t, h)
	ctx := context.Background()

	s := reg.Create(ctx)

	got, err := reg.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	h.clock.Advance(2 * time.Minute)
	store.EXPECT().Touch(gomock.Any(), s.ID(), idleTTL).Return(nil)

	_, err = reg.Get(ctx, s.ID())
	require.NoError(t, err)

	_, err = reg.Get(ctx, s.ID())
	require.NoError(t, err)
}

func TestRegistryGetUnknownSession(t *testing.T) {
	h := newHarness(t)
	reg, store := newRegistry(t, h)

	store.EXPECT().
		Load(gomock.Any(), "missing").
		Return("", fmt.Errorf("load session: %w", core.ErrNotFound))

	_, err := reg.Get(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Zero(t, reg.Len())
}

func TestRegistryGetStorageFailure(t *testing.T) {
	h := newHarness(t)
	reg, store := newRegistry(t, h)

	store.EXPECT().
		Load(gomock.Any(), "sid").
		Return("", core.StorageError("load session", errors.New("timeout")))

	_, err := reg.Get(context.Background(), "sid")
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestRegistryRehydratesPersistedSession(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	h.records.PutUser(user.Record{ID: uid, Role: role.Master, Status: user.StatusActive})
	reg, store := newRegistry(t, h)

	store.EXPECT().Load(gomock.Any(), "persisted").Return(uid, nil)
	store.EXPECT().Save(gomock.Any(), "persisted", uid, idleTTL).Return(nil)

	s, err := reg.Get(context.Background(), "persisted")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, "persisted", s.ID())
	assert.Equal(t, session.StateReady, snap.State)
	assert.Equal(t, role.Master, snap.Role)
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, uid, snap.CurrentUser.UID)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDropsOrphanedRecord(t *testing.T) {
	h := newHarness(t)
	reg, store := newRegistry(t, h)

	gomock.InOrder(
		store.EXPECT().Load(gomock.Any(), "orphan").Return("deleted-uid", nil),
		store.EXPECT().Delete(gomock.Any(), "orphan").Return(nil),
	)

	_, err := reg.Get(context.Background(), "orphan")
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Zero(t, reg.Len())
}

func TestRegistryDestroy(t *testing.T) {
	h := newHarness(t)
	reg, store := newRegistry(t, h)
	ctx := context.Background()

	s := reg.Create(ctx)
	store.EXPECT().Delete(gomock.Any(), s.ID()).Return(nil)

	require.NoError(t, reg.Destroy(ctx, s.ID()))
	assert.Zero(t, reg.Len())
}

func TestRegistrySweepEvictsIdleSessions(t *testing.T) {
	h := newHarness(t)
	reg, store := newRegistry(t, h)
	ctx := context.Background()

	idle := reg.Create(ctx)
	h.clock.Advance(idleTTL - time.Minute)
	active := reg.Create(ctx)

	h.clock.Advance(2 * time.Minute)
	store.EXPECT().Touch(gomock.Any(), active.ID(), idleTTL).Return(nil)
	_, err := reg.Get(ctx, active.ID())
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Sweep())
	assert.Equal(t, 1, reg.Len())

	store.EXPECT().
		Load(gomock.Any(), idle.ID()).
		Return("", fmt.Errorf("load session: %w", core.ErrNotFound))
	_, err = reg.Get(ctx, idle.ID())
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestRegistryRunClosesSessionsOnShutdown(t *testing.T) {
	h := newHarness(t)
	reg, _ := newRegistry(t, h)

	reg.Create(context.Background())
	reg.Create(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx)
		close(done)
	}()

	cancel()
	<-done
	assert.Zero(t, reg.Len())
}
