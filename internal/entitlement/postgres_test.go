// AngelaMos | 2026
// postgres_test.go

package entitlement_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
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

type pgFixture struct {
	db      *sqlx.DB
	users   user.Repository
	codes   bonuscode.Repository
	manager *entitlement.Manager
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()

	db := testutil.Postgres(t)
	users := user.NewRepository(db)
	return &pgFixture{
		db:    db,
		users: users,
		codes: bonuscode.NewRepository(db),
		manager: entitlement.NewManager(
			users,
			entitlement.NewPostgresTxRunner(db),
			slog.New(slog.DiscardHandler),
		),
	}
}

func (f *pgFixture) identity(t *testing.T) identity.Identity {
	t.Helper()

	uid := "pg-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = f.db.Exec(`DELETE FROM users WHERE id = $1`, uid)
	})
	return identity.Identity{UID: uid, Email: strings.ToUpper(uid) + "@Example.com"}
}

func (f *pgFixture) code(t *testing.T, r role.Role, days, uses int) string {
	t.Helper()

	c := &bonuscode.Code{
		ID:           uuid.NewString(),
		Code:         strings.ToUpper(uuid.NewString()[:8]),
		Role:         r,
		DurationDays: days,
		UsesLeft:     uses,
	}
	require.NoError(t, f.codes.Create(context.Background(), c))
	t.Cleanup(func() {
		_, _ = f.db.Exec(`DELETE FROM bonus_codes WHERE id = $1`, c.ID)
	})
	return c.Code
}

func TestPostgresBootstrapMergeKeepsEntitlement(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	id := f.identity(t)

	rec, err := f.manager.Bootstrap(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, role.Basic, rec.Role)
	assert.Equal(t, strings.ToLower(id.Email), rec.Email)
	assert.Empty(t, rec.DisplayName)

	_, err = f.users.UpdateEntitlement(ctx, id.UID, user.EntitlementUpdate{
		Role:   role.Master,
		Status: user.StatusActive,
	})
	require.NoError(t, err)

	id.DisplayName = "Ana"
	rec, err = f.manager.Bootstrap(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, role.Master, rec.Role)
	assert.Equal(t, "Ana", rec.DisplayName)
}

func TestPostgresConcurrentFirstResolveCreatesOneRecord(t *testing.T) {
	f := newPGFixture(t)
	id := f.identity(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Resolve(context.Background(), id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, f.db.Get(&count, `SELECT COUNT(*) FROM users WHERE id = $1`, id.UID))
	assert.Equal(t, 1, count)
}

func TestPostgresExpiredRoleResetsOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	id := f.identity(t)

	_, err := f.manager.Bootstrap(ctx, id)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	_, err = f.users.UpdateEntitlement(ctx, id.UID, user.EntitlementUpdate{
		Role:          role.Tool,
		Status:        user.StatusActive,
		RoleExpiresAt: &past,
	})
	require.NoError(t, err)

	res, err := f.manager.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, role.Basic, res.Role)
	assert.Nil(t, res.Record.RoleExpiresAt)
	assert.Equal(t, entitlement.ExpiredNotice, res.Notice)

	res, err = f.manager.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, res.Notice)
}

func TestPostgresConcurrentRedeemRespectsUses(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	code := f.code(t, role.Master, 30, 3)

	const redeemers = 10
	ids := make([]identity.Identity, redeemers)
	for i := range ids {
		ids[i] = f.identity(t)
		_, err := f.manager.Bootstrap(ctx, ids[i])
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		granted   int
		exhausted int
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Redeem(ctx, strings.ToLower(code), id.UID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, entitlement.ErrExhaustedCode):
				exhausted++
			default:
				t.Errorf("unexpected redeem error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	assert.Equal(t, redeemers-3, exhausted)

	stored, err := f.codes.GetByCode(ctx, code)
	require.NoError(t, err)
	assert.Zero(t, stored.UsesLeft)

	var masters int
	require.NoError(t, f.db.Get(&masters,
		`SELECT COUNT(*) FROM users
		 WHERE id = ANY($1) AND role = $2 AND role_expires_at IS NOT NULL`,
		pq.Array(uidArray(ids)), role.Master,
	))
	assert.Equal(t, 3, masters)
}

func TestPostgresRedeemMissingRecordRollsBack(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	code := f.code(t, role.Tool, 5, 1)

	_, err := f.manager.Redeem(ctx, code, "pg-"+uuid.NewString())
	require.ErrorIs(t, err, core.ErrNotAuthenticated)

	stored, err := f.codes.GetByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsesLeft)
}

func uidArray(ids []identity.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.UID
	}
	return out
}
