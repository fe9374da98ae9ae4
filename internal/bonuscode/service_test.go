// AngelaMos | 2026
// service_test.go

package bonuscode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

type fakeRepo struct {
	codes   map[string]Code
	created int
	err     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{codes: make(map[string]Code)}
}

func (f *fakeRepo) Create(_ context.Context, c *Code) error {
	if f.err != nil {
		return f.err
	}
	for _, existing := range f.codes {
		if existing.Code == c.Code {
			return fmt.Errorf("create code: %w", core.ErrDuplicateKey)
		}
	}
	f.created++
	f.codes[c.ID] = *c
	return nil
}

func (f *fakeRepo) List(context.Context) ([]Code, error) {
	out := make([]Code, 0, len(f.codes))
	for _, c := range f.codes {
		out = append(out, c)
	}
	return out, f.err
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.codes[id]; !ok {
		return fmt.Errorf("delete code: %w", core.ErrNotFound)
	}
	delete(f.codes, id)
	return nil
}

func (f *fakeRepo) GetByCode(_ context.Context, code string) (*Code, error) {
	for _, c := range f.codes {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("get code: %w", core.ErrNotFound)
}

func (f *fakeRepo) GetByCodeForUpdate(ctx context.Context, code string) (*Code, error) {
	return f.GetByCode(ctx, code)
}

func (f *fakeRepo) DecrementUses(_ context.Context, id string) error {
	c, ok := f.codes[id]
	if !ok || c.UsesLeft <= 0 {
		return ErrNoUsesLeft
	}
	c.UsesLeft--
	f.codes[id] = c
	return nil
}

func sequence(values ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(values) {
			return "", errors.New("sequence exhausted")
		}
		v := values[i]
		i++
		return v, nil
	}
}

func newTestService(repo Repository, gen func() (string, error)) *Service {
	return NewService(repo, slog.New(slog.DiscardHandler), WithGenerator(gen))
}

func TestCreate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, sequence("abc123xy"))

	code, err := svc.Create(context.Background(), CreateRequest{
		Role:         "E-MASTER",
		DurationDays: 30,
		Uses:         10,
	})
	require.NoError(t, err)

	assert.Equal(t, "ABC123XY", code.Code)
	assert.Equal(t, role.Master, code.Role)
	assert.Equal(t, 30, code.DurationDays)
	assert.Equal(t, 10, code.UsesLeft)
	assert.NotEmpty(t, code.ID)
	assert.Len(t, repo.codes, 1)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	repo := newFakeRepo()
	repo.codes["x"] = Code{ID: "x", Code: "TAKEN"}
	svc := newTestService(repo, sequence("taken", "fresh"))

	code, err := svc.Create(context.Background(), CreateRequest{
		Role:         "E-TOOL",
		DurationDays: 7,
		Uses:         1,
	})
	require.NoError(t, err)
	assert.Equal(t, "FRESH", code.Code)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newFakeRepo()
	repo.codes["x"] = Code{ID: "x", Code: "TAKEN"}
	values := make([]string, maxGenerateAttempts)
	for i := range values {
		values[i] = "taken"
	}
	svc := newTestService(repo, sequence(values...))

	_, err := svc.Create(context.Background(), CreateRequest{
		Role:         "E-TOOL",
		DurationDays: 7,
		Uses:         1,
	})
	require.ErrorIs(t, err, ErrCodeCollision)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := newTestService(newFakeRepo(), sequence("unused"))

	tests := []CreateRequest{
		{Role: "GOD", DurationDays: 1, Uses: 1},
		{Role: "E-TOOL", DurationDays: 0, Uses: 1},
		{Role: "E-TOOL", DurationDays: 1, Uses: 0},
	}
	for _, req := range tests {
		_, err := svc.Create(context.Background(), req)
		require.ErrorIs(t, err, core.ErrInvalidInput, "%+v", req)
	}
}

func TestCreateStorageError(t *testing.T) {
	repo := newFakeRepo()
	repo.err = core.StorageError("insert", errors.New("boom"))
	svc := newTestService(repo, sequence("abc"))

	_, err := svc.Create(context.Background(), CreateRequest{
		Role:         "E-TOOL",
		DurationDays: 1,
		Uses:         1,
	})
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
	assert.Zero(t, repo.created)
}

func TestDelete(t *testing.T) {
	repo := newFakeRepo()
	repo.codes["id1"] = Code{ID: "id1", Code: "A"}
	svc := newTestService(repo, sequence())

	require.NoError(t, svc.Delete(context.Background(), "id1"))
	require.ErrorIs(t, svc.Delete(context.Background(), "id1"), core.ErrNotFound)
}

func TestCodeHelpers(t *testing.T) {
	c := Code{DurationDays: 3, UsesLeft: 0}
	assert.True(t, c.Exhausted())
	assert.Equal(t, "72h0m0s", c.Duration().String())
	assert.Equal(t, "MASTER-PROMO", Normalize("  master-promo\t"))
}
