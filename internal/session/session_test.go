// AngelaMos | 2026
// session_test.go

package session_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/blob"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/mocks"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/testutil"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const password = "s3cret-pass"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t         *testing.T
	directory *identity.Directory
	records   *testutil.MemStore
	manager   *entitlement.Manager
	clock     *clock
	blobs     *mocks.MockStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	h := &harness{
		t:         t,
		directory: identity.NewDirectory(testutil.NewMemAccounts(), logger),
		records:   testutil.NewMemStore(),
		clock:     &clock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)},
		blobs:     mocks.NewMockStore(gomock.NewController(t)),
	}
	h.manager = entitlement.NewManager(
		h.records,
		h.records,
		logger,
		entitlement.WithClock(h.clock.Now),
	)
	return h
}

func (h *harness) options() session.Options {
	return session.Options{
		Resolver: h.manager,
		Profiles: h.records,
		Blobs:    h.blobs,
		Logger:   slog.New(slog.DiscardHandler),
		Clock:    h.clock.Now,
	}
}

func (h *harness) session(opts session.Options) *session.Session {
	h.t.Helper()
	s := session.New("sid-1", identity.NewClient(h.directory), opts)
	s.Start(context.Background())
	h.t.Cleanup(s.Close)
	return s
}

// account registers email and returns its uid.
func (h *harness) account(email string) string {
	h.t.Helper()
	id, err := h.directory.Register(context.Background(), email, password)
	require.NoError(h.t, err)
	return id.UID
}

func strptr(s string) *string { return &s }

func TestNewSessionIsLoading(t *testing.T) {
	h := newHarness(t)
	s := session.New("sid-1", identity.NewClient(h.directory), h.options())

	snap := s.Snapshot()
	assert.Equal(t, session.StateLoading, snap.State)
	assert.True(t, snap.Loading)
	assert.Nil(t, snap.CurrentUser)
	assert.Equal(t, role.None, snap.Role)
}

func TestStartWithoutIdentity(t *testing.T) {
	h := newHarness(t)
	s := h.session(h.options())

	snap := s.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.False(t, snap.Loading)
	assert.False(t, snap.Authenticated())
}

func TestSignupBootstrapsBasicRecord(t *testing.T) {
	h := newHarness(t)
	s := h.session(h.options())

	id, err := s.Signup(context.Background(), "Ana@Example.com", password, "  Ana  ")
	require.NoError(t, err)
	assert.Equal(t, "Ana", id.DisplayName)

	snap := s.Snapshot()
	assert.Equal(t, session.StateReady, snap.State)
	assert.Equal(t, role.Basic, snap.Role)
	assert.Equal(t, user.StatusActive, snap.Status)
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "Ana", snap.CurrentUser.DisplayName)

	rec, ok := h.records.User(id.UID)
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", rec.Email)
	assert.Equal(t, "Ana", rec.DisplayName)
	assert.Equal(t, role.Basic, rec.Role)
}

func TestSignupDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.account("taken@example.com")
	s := h.session(h.options())

	_, err := s.Signup(context.Background(), "taken@example.com", password, "")
	require.Error(t, err)
	assert.Equal(t, identity.CodeEmailInUse, identity.CodeOf(err))
	assert.Equal(t, session.StateUnauthenticated, s.Snapshot().State)
}

func TestLoginAndLogoutTransitions(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	h.records.PutUser(user.Record{ID: uid, Role: role.Tool, Status: user.StatusActive})

	s := h.session(h.options())

	var (
		mu     sync.Mutex
		states []session.State
	)
	cancel := s.Subscribe(func(snap session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, snap.State)
	})
	defer cancel()

	ctx := context.Background()

	_, err := s.Login(ctx, "bia@example.com", password)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, session.StateReady, snap.State)
	assert.Equal(t, role.Tool, snap.Role)
	assert.False(t, snap.Loading)

	require.NoError(t, s.Logout(ctx))

	snap = s.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.Equal(t, role.None, snap.Role)
	assert.Nil(t, snap.CurrentUser)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.State{
		session.StateResolving,
		session.StateReady,
		session.StateUnauthenticated,
	}, states)
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.account("bia@example.com")
	s := h.session(h.options())

	_, err := s.Login(context.Background(), "bia@example.com", "nope-nope")
	require.Error(t, err)
	assert.Equal(t, identity.CodeWrongPassword, identity.CodeOf(err))
	assert.Equal(t, session.StateUnauthenticated, s.Snapshot().State)
}

func TestUnsubscribeStopsUpdates(t *testing.T) {
	h := newHarness(t)
	h.account("bia@example.com")
	s := h.session(h.options())

	calls := 0
	cancel := s.Subscribe(func(session.Snapshot) { calls++ })
	cancel()
	cancel()

	_, err := s.Login(context.Background(), "bia@example.com", password)
	require.NoError(t, err)
	assert.Zero(t, calls)
}

type failingResolver struct {
	*entitlement.Manager
}

func (failingResolver) Resolve(
	context.Context,
	identity.Identity,
) (*entitlement.Resolution, error) {
	return nil, core.StorageError("resolve", errors.New("connection refused"))
}

func TestResolutionFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	h.records.PutUser(user.Record{ID: uid, Role: role.Admin, Status: user.StatusActive})

	opts := h.options()
	opts.Resolver = failingResolver{h.manager}
	s := h.session(opts)

	_, err := s.Login(context.Background(), "bia@example.com", password)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, session.StateReady, snap.State)
	assert.Equal(t, role.None, snap.Role)
	assert.True(t, snap.Authenticated())
}

func TestBannedUserHasNoRole(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	h.records.PutUser(user.Record{ID: uid, Role: role.Master, Status: user.StatusBanned})

	s := h.session(h.options())
	_, err := s.Login(context.Background(), "bia@example.com", password)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, session.StateBanned, snap.State)
	assert.Equal(t, role.None, snap.Role)
	assert.Equal(t, user.StatusBanned, snap.Status)
}

func TestExpiredGrantNoticeConsumedOnce(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	lapsed := h.clock.Now().Add(-time.Minute)
	h.records.PutUser(user.Record{
		ID:            uid,
		Role:          role.Master,
		Status:        user.StatusActive,
		RoleExpiresAt: &lapsed,
	})

	s := h.session(h.options())
	_, err := s.Login(context.Background(), "bia@example.com", password)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, role.Basic, snap.Role)
	assert.Nil(t, snap.RoleExpiresAt)

	assert.Equal(t, entitlement.ExpiredNotice, s.ConsumeNotice())
	assert.Empty(t, s.ConsumeNotice())
}

type blockingResolver struct {
	*entitlement.Manager
	entered chan struct{}
	release chan struct{}
}

func (b blockingResolver) Resolve(
	ctx context.Context,
	id identity.Identity,
) (*entitlement.Resolution, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.Manager.Resolve(ctx, id)
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	h.records.PutUser(user.Record{ID: uid, Role: role.Admin, Status: user.StatusActive})

	resolver := blockingResolver{
		Manager: h.manager,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	opts := h.options()
	opts.Resolver = resolver
	s := h.session(opts)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Login(ctx, "bia@example.com", password)
	}()

	<-resolver.entered
	assert.Equal(t, session.StateResolving, s.Snapshot().State)
	assert.True(t, s.Snapshot().Loading)

	require.NoError(t, s.Logout(ctx))
	close(resolver.release)
	<-done

	snap := s.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.Equal(t, role.None, snap.Role)
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	h.records.PutUser(user.Record{ID: uid, Role: role.Basic, Status: user.StatusActive})

	s := h.session(h.options())
	ctx := context.Background()
	_, err := s.Login(ctx, "bia@example.com", password)
	require.NoError(t, err)

	h.records.PutUser(user.Record{ID: uid, Role: role.Master, Status: user.StatusActive})
	assert.Equal(t, role.Basic, s.Snapshot().Role)

	snap := s.Refresh(ctx)
	assert.Equal(t, role.Master, snap.Role)
}

func TestEnsureFreshHonoursWindow(t *testing.T) {
	h := newHarness(t)
	uid := h.account("bia@example.com")
	h.records.PutUser(user.Record{ID: uid, Role: role.Basic, Status: user.StatusActive})

	opts := h.options()
	opts.RevalidateAfter = time.Minute
	s := h.session(opts)

	ctx := context.Background()
	_, err := s.Login(ctx, "bia@example.com", password)
	require.NoError(t, err)

	h.records.PutUser(user.Record{ID: uid, Role: role.Tool, Status: user.StatusActive})

	h.clock.Advance(30 * time.Second)
	s.EnsureFresh(ctx)
	assert.Equal(t, role.Basic, s.Snapshot().Role)

	h.clock.Advance(time.Minute)
	s.EnsureFresh(ctx)
	assert.Equal(t, role.Tool, s.Snapshot().Role)
}

func TestUpdateProfileRequiresIdentity(t *testing.T) {
	h := newHarness(t)
	s := h.session(h.options())

	_, err := s.UpdateProfile(context.Background(), session.ProfileChanges{
		DisplayName: strptr("x"),
	}, nil)
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestUpdateProfileWithPhoto(t *testing.T) {
	h := newHarness(t)
	s := h.session(h.options())
	ctx := context.Background()

	id, err := s.Signup(ctx, "bia@example.com", password, "Bia")
	require.NoError(t, err)

	wantPath := "profile_pictures/" + id.UID + "/me.png"
	ref := blob.Ref{Path: wantPath, ContentType: "image/png", Size: 3}
	url := "https://cdn.example.com/v1/blobs/" + wantPath

	gomock.InOrder(
		h.blobs.EXPECT().
			Upload(gomock.Any(), wantPath, []byte{1, 2, 3}, "image/png").
			Return(ref, nil),
		h.blobs.EXPECT().PublicURL(ref).Return(url),
	)

	rec, err := s.UpdateProfile(ctx, session.ProfileChanges{
		DisplayName: strptr(" Beatriz "),
		Email:       strptr("BIA@example.com"),
	}, &session.Photo{
		Name:        "../../me.png",
		ContentType: "image/png",
		Data:        []byte{1, 2, 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "Beatriz", rec.DisplayName)
	require.NotNil(t, rec.PhotoURL)
	assert.Equal(t, url, *rec.PhotoURL)
	assert.Equal(t, "bia@example.com", rec.Email)

	cur := s.Snapshot().CurrentUser
	require.NotNil(t, cur)
	assert.Equal(t, "Beatriz", cur.DisplayName)
	assert.Equal(t, url, cur.PhotoURL)
}

func TestUpdateProfileStoresNormalizedEmail(t *testing.T) {
	h := newHarness(t)
	s := h.session(h.options())
	ctx := context.Background()

	id, err := s.Signup(ctx, "bia@example.com", password, "Bia")
	require.NoError(t, err)

	rec, err := s.UpdateProfile(ctx, session.ProfileChanges{
		Email: strptr(" New.Bia@Example.COM "),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new.bia@example.com", rec.Email)

	stored, ok := h.records.User(id.UID)
	require.True(t, ok)
	assert.Equal(t, "new.bia@example.com", stored.Email)
	assert.Equal(t, stored.Email, s.Snapshot().CurrentUser.Email)
}

func TestUpdateProfileUploadFailureLeavesRecord(t *testing.T) {
	h := newHarness(t)
	s := h.session(h.options())
	ctx := context.Background()

	id, err := s.Signup(ctx, "bia@example.com", password, "Bia")
	require.NoError(t, err)

	uploadErr := core.StorageError("upload", errors.New("disk full"))
	h.blobs.EXPECT().
		Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(blob.Ref{}, uploadErr)

	_, err = s.UpdateProfile(ctx, session.ProfileChanges{
		DisplayName: strptr("Someone Else"),
	}, &session.Photo{Name: "me.png", ContentType: "image/png", Data: []byte{1}})
	require.ErrorIs(t, err, core.ErrStorageUnavailable)

	rec, _ := h.records.User(id.UID)
	assert.Equal(t, "Bia", rec.DisplayName)
	assert.Nil(t, rec.PhotoURL)
	assert.Equal(t, "Bia", s.Snapshot().CurrentUser.DisplayName)
}

func TestUpdateProfileWeakPasswordSkipsRecordWrite(t *testing.T) {
	h := newHarness(t)
	s := h.session(h.options())
	ctx := context.Background()

	id, err := s.Signup(ctx, "bia@example.com", password, "Bia")
	require.NoError(t, err)

	_, err = s.UpdateProfile(ctx, session.ProfileChanges{
		DisplayName: strptr("Renamed"),
		Password:    strptr("123"),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, identity.CodeWeakPassword, identity.CodeOf(err))

	rec, _ := h.records.User(id.UID)
	assert.Equal(t, "Bia", rec.DisplayName)
}

func TestPhotoPath(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		want    string
		wantErr bool
	}{
		{name: "plain", file: "avatar.jpg", want: "profile_pictures/u1/avatar.jpg"},
		{name: "strips dirs", file: "a/b/avatar.jpg", want: "profile_pictures/u1/avatar.jpg"},
		{name: "strips traversal", file: "../../etc/passwd", want: "profile_pictures/u1/passwd"},
		{name: "windows path", file: `C:\pics\me.png`, want: "profile_pictures/u1/me.png"},
		{name: "empty", file: "", wantErr: true},
		{name: "dot dot", file: "..", wantErr: true},
		{name: "trailing slash", file: "dir/", want: "profile_pictures/u1/dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := session.PhotoPath("u1", tt.file)
			if tt.wantErr {
				require.ErrorIs(t, err, blob.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
