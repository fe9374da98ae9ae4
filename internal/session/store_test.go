// AngelaMos | 2026
// store_test.go

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/testutil"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	client, prefix := testutil.Redis(t)
	store := session.NewRedisStore(client, prefix)
	ctx := context.Background()

	_, err := store.Load(ctx, "sid")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Save(ctx, "sid", "uid-1", time.Minute))

	uid, err := store.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)

	require.NoError(t, store.Touch(ctx, "sid", time.Hour))
	ttl := client.TTL(ctx, prefix+"sid").Val()
	assert.Greater(t, ttl, time.Minute)

	require.NoError(t, store.Delete(ctx, "sid"))
	_, err = store.Load(ctx, "sid")
	require.ErrorIs(t, err, core.ErrNotFound)
}
