// AngelaMos | 2026
// manager_test.go

package entitlement_test

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

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/bonuscode"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/testutil"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const day = 24 * time.Hour

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *testutil.MemStore
	manager *entitlement.Manager
	now     time.Time
	mu      sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: testutil.NewMemStore(), now: epoch}
	f.manager = entitlement.NewManager(
		f.store,
		f.store,
		slog.New(slog.DiscardHandler),
		entitlement.WithClock(f.clock),
	)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fixture) user(id string, r role.Role, expires *time.Time) {
	f.store.PutUser(user.Record{
		ID:            id,
		Email:         id + "@example.com",
		Role:          r,
		Status:        user.StatusActive,
		RoleExpiresAt: expires,
	})
}

func (f *fixture) code(id, code string, r role.Role, days, uses int) {
	f.store.PutCode(bonuscode.Code{
		ID:           id,
		Code:         code,
		Role:         r,
		DurationDays: days,
		UsesLeft:     uses,
	})
}

func ptr(t time.Time) *time.Time { return &t }

func TestRedeemPromoCode(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Basic, nil)
	f.code("c1", "MASTER-PROMO", role.Master, 30, 10)

	grant, err := f.manager.Redeem(context.Background(), "  master-promo ", "u1")
	require.NoError(t, err)

	assert.Equal(t, role.Master, grant.Role)
	assert.Equal(t, 30, grant.DurationDays)
	assert.Equal(t, epoch.Add(30*day), grant.ExpiresAt)

	rec, _ := f.store.User("u1")
	assert.Equal(t, role.Master, rec.Role)
	require.NotNil(t, rec.RoleExpiresAt)
	assert.Equal(t, epoch.Add(30*day), *rec.RoleExpiresAt)

	c, _ := f.store.Code("c1")
	assert.Equal(t, 9, c.UsesLeft)
}

func TestRedeemExtendsActiveGrant(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Tool, ptr(epoch.Add(3*day)))
	f.code("c1", "TOOL5", role.Tool, 5, 1)

	f.setNow(epoch.Add(day))

	grant, err := f.manager.Redeem(context.Background(), "TOOL5", "u1")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(8*day), grant.ExpiresAt)
}

func TestRedeemAfterLapseStartsFromNow(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Tool, ptr(epoch.Add(-2*day)))
	f.code("c1", "TOOL5", role.Tool, 5, 1)

	grant, err := f.manager.Redeem(context.Background(), "TOOL5", "u1")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(5*day), grant.ExpiresAt)
}

func TestRedeemUntilExhausted(t *testing.T) {
	f := newFixture(t)
	f.code("c1", "TWICE", role.Tool, 7, 2)
	for i := range 3 {
		f.user(fmt.Sprintf("u%d", i), role.Basic, nil)
	}

	ctx := context.Background()

	_, err := f.manager.Redeem(ctx, "TWICE", "u0")
	require.NoError(t, err)
	_, err = f.manager.Redeem(ctx, "TWICE", "u1")
	require.NoError(t, err)

	_, err = f.manager.Redeem(ctx, "TWICE", "u2")
	require.ErrorIs(t, err, entitlement.ErrExhaustedCode)

	c, _ := f.store.Code("c1")
	assert.Equal(t, 0, c.UsesLeft)

	rec, _ := f.store.User("u2")
	assert.Equal(t, role.Basic, rec.Role)
	assert.Nil(t, rec.RoleExpiresAt)
}

func TestRedeemInvalidCode(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Basic, nil)
	f.code("c1", "REAL", role.Tool, 7, 1)

	for _, input := range []string{"", "   ", "NOPE"} {
		_, err := f.manager.Redeem(context.Background(), input, "u1")
		require.ErrorIs(t, err, entitlement.ErrInvalidCode, "input %q", input)
	}

	c, _ := f.store.Code("c1")
	assert.Equal(t, 1, c.UsesLeft)
}

func TestRedeemWithoutRecordLeavesCodeUntouched(t *testing.T) {
	f := newFixture(t)
	f.code("c1", "REAL", role.Tool, 7, 1)

	_, err := f.manager.Redeem(context.Background(), "REAL", "ghost")
	require.ErrorIs(t, err, core.ErrNotAuthenticated)

	c, _ := f.store.Code("c1")
	assert.Equal(t, 1, c.UsesLeft)
}

func TestRedeemRefusedForBannedUser(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser(user.Record{
		ID:     "b1",
		Role:   role.Basic,
		Status: user.StatusBanned,
	})
	f.code("c1", "ONCE", role.Master, 30, 1)

	grant, err := f.manager.Redeem(context.Background(), "ONCE", "b1")
	require.ErrorIs(t, err, entitlement.ErrBanned)
	assert.ErrorIs(t, err, core.ErrForbidden)
	assert.NotErrorIs(t, err, core.ErrStorageUnavailable)
	assert.Nil(t, grant)

	c, _ := f.store.Code("c1")
	assert.Equal(t, 1, c.UsesLeft)

	rec, _ := f.store.User("b1")
	assert.Equal(t, role.Basic, rec.Role)
	assert.Nil(t, rec.RoleExpiresAt)
}

func TestRedeemRequiresUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Redeem(context.Background(), "REAL", "")
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestRedeemStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Basic, nil)
	f.code("c1", "REAL", role.Tool, 7, 1)
	f.store.FailWith(errors.New("connection reset"))

	_, err := f.manager.Redeem(context.Background(), "REAL", "u1")
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestConcurrentRedeemNeverOverspends(t *testing.T) {
	f := newFixture(t)
	f.code("c1", "RACE", role.Tool, 1, 5)

	const users = 20
	for i := range users {
		f.user(fmt.Sprintf("u%d", i), role.Basic, nil)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := range users {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			_, err := f.manager.Redeem(context.Background(), "RACE", uid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, entitlement.ErrExhaustedCode):
				exhausted++
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, users-5, exhausted)

	c, _ := f.store.Code("c1")
	assert.Equal(t, 0, c.UsesLeft)
}

func TestResolveBootstrapsMissingRecord(t *testing.T) {
	f := newFixture(t)

	res, err := f.manager.Resolve(context.Background(), identity.Identity{
		UID:         "new",
		Email:       "New@Example.com",
		DisplayName: "New User",
	})
	require.NoError(t, err)

	assert.Equal(t, role.Basic, res.Role)
	assert.Equal(t, user.StatusActive, res.Status)
	assert.Empty(t, res.Notice)
	require.NotNil(t, res.Record)
	assert.Equal(t, "new@example.com", res.Record.Email)
	assert.Equal(t, "New User", res.Record.DisplayName)
}

func TestConcurrentBootstrapCreatesOneRecord(t *testing.T) {
	f := newFixture(t)
	id := identity.Identity{UID: "same", Email: "same@example.com"}

	var wg sync.WaitGroup
	roles := make([]role.Role, 16)
	for i := range roles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.manager.Resolve(context.Background(), id)
			if err == nil {
				roles[i] = res.Role
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.UserCount())
	for _, r := range roles {
		assert.Equal(t, role.Basic, r)
	}
}

func TestBootstrapKeepsExistingEntitlement(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Master, nil)

	rec, err := f.manager.Bootstrap(context.Background(), identity.Identity{
		UID:         "u1",
		DisplayName: "Late Name",
	})
	require.NoError(t, err)

	assert.Equal(t, role.Master, rec.Role)
	assert.Equal(t, "Late Name", rec.DisplayName)
}

func TestResolveResetsLapsedGrantOnce(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Master, ptr(epoch.Add(-time.Hour)))

	ctx := context.Background()
	id := identity.Identity{UID: "u1"}

	res, err := f.manager.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, role.Basic, res.Role)
	assert.Equal(t, entitlement.ExpiredNotice, res.Notice)
	assert.Nil(t, res.Record.RoleExpiresAt)

	res, err = f.manager.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, role.Basic, res.Role)
	assert.Empty(t, res.Notice)
}

func TestResolveKeepsGrantAtExactExpiry(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Tool, ptr(epoch))

	res, err := f.manager.Resolve(context.Background(), identity.Identity{UID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, role.Tool, res.Role)
	assert.Empty(t, res.Notice)
}

func TestResolveBannedOverridesRole(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser(user.Record{
		ID:     "boss",
		Role:   role.Admin,
		Status: user.StatusBanned,
	})

	res, err := f.manager.Resolve(context.Background(), identity.Identity{UID: "boss"})
	require.NoError(t, err)
	assert.Equal(t, role.None, res.Role)
	assert.Equal(t, user.StatusBanned, res.Status)
	assert.Equal(t, role.Admin, res.Record.Role)
}

func TestResolveStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith(errors.New("timeout"))

	_, err := f.manager.Resolve(context.Background(), identity.Identity{UID: "u1"})
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestResolveRequiresUID(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Resolve(context.Background(), identity.Identity{})
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestAdminUpdate(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Basic, nil)
	ctx := context.Background()

	rec, err := f.manager.AdminUpdate(ctx, "u1", user.EntitlementUpdate{
		Role:   role.Master,
		Status: user.StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, role.Master, rec.Role)
	assert.Nil(t, rec.RoleExpiresAt)

	_, err = f.manager.AdminUpdate(ctx, "u1", user.EntitlementUpdate{
		Role:   "GOD",
		Status: user.StatusActive,
	})
	require.ErrorIs(t, err, core.ErrInvalidInput)
	require.ErrorIs(t, err, role.ErrUnknownRole)

	_, err = f.manager.AdminUpdate(ctx, "u1", user.EntitlementUpdate{
		Role:   role.Tool,
		Status: "suspended",
	})
	require.ErrorIs(t, err, user.ErrUnknownStatus)

	_, err = f.manager.AdminUpdate(ctx, "ghost", user.EntitlementUpdate{
		Role:   role.Tool,
		Status: user.StatusActive,
	})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestBan(t *testing.T) {
	f := newFixture(t)
	f.user("u1", role.Tool, ptr(epoch.Add(day)))
	f.user("admin", role.Admin, nil)
	ctx := context.Background()

	rec, err := f.manager.Ban(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, user.StatusBanned, rec.Status)
	assert.Equal(t, role.Tool, rec.Role)
	require.NotNil(t, rec.RoleExpiresAt)

	_, err = f.manager.Ban(ctx, "admin")
	require.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.manager.Ban(ctx, "ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
}
