// AngelaMos | 2026
// memstore.go

// Package testutil holds in-memory stand-ins for the Postgres stores and
// helpers for integration tests that need a live database or Redis.
package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/bonuscode"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

// MemStore mimics the users and bonus_codes tables. InTx serializes
// transactions, standing in for the row locks, and rolls back every write
// when fn fails.
type MemStore struct {
	txMu sync.Mutex

	mu    sync.Mutex
	users map[string]user.Record
	codes map[string]bonuscode.Code
	err   error
	now   func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		users: make(map[string]user.Record),
		codes: make(map[string]bonuscode.Code),
		now:   time.Now,
	}
}

// FailWith makes every subsequent call return err until cleared with nil.
func (s *MemStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemStore) PutUser(rec user.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[rec.ID] = cloneRecord(rec)
}

func (s *MemStore) User(id string) (user.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	return cloneRecord(rec), ok
}

func (s *MemStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *MemStore) PutCode(c bonuscode.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.ID] = c
}

func (s *MemStore) Code(id string) (bonuscode.Code, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	return c, ok
}

func (s *MemStore) GetByID(_ context.Context, id string) (*user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (s *MemStore) GetByIDForUpdate(ctx context.Context, id string) (*user.Record, error) {
	return s.GetByID(ctx, id)
}

// Bootstrap matches the merge-upsert: an existing row only gains missing
// profile fields.
func (s *MemStore) Bootstrap(_ context.Context, rec *user.Record) (*user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	existing, ok := s.users[rec.ID]
	if !ok {
		stored := cloneRecord(*rec)
		stored.CreatedAt = s.now()
		stored.UpdatedAt = stored.CreatedAt
		if stored.SeenNotifications == nil {
			stored.SeenNotifications = []string{}
		}
		s.users[rec.ID] = stored
		out := cloneRecord(stored)
		return &out, nil
	}

	if existing.Email == "" {
		existing.Email = rec.Email
	}
	if existing.DisplayName == "" {
		existing.DisplayName = rec.DisplayName
	}
	if existing.PhotoURL == nil && rec.PhotoURL != nil {
		photo := *rec.PhotoURL
		existing.PhotoURL = &photo
	}
	s.users[rec.ID] = existing
	out := cloneRecord(existing)
	return &out, nil
}

func (s *MemStore) ResetExpiredRole(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}

	rec, ok := s.users[id]
	if !ok || rec.RoleExpiresAt == nil || !rec.RoleExpiresAt.Before(now) {
		return false, nil
	}
	rec.Role = role.Basic
	rec.RoleExpiresAt = nil
	rec.UpdatedAt = now
	s.users[id] = rec
	return true, nil
}

func (s *MemStore) GrantRole(_ context.Context, id string, r role.Role, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	rec, ok := s.users[id]
	if !ok {
		return fmt.Errorf("grant role: %w", core.ErrNotFound)
	}
	rec.Role = r
	rec.RoleExpiresAt = &expiresAt
	s.users[id] = rec
	return nil
}

func (s *MemStore) UpdateEntitlement(
	_ context.Context,
	id string,
	upd user.EntitlementUpdate,
) (*user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	rec, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("update entitlement: %w", core.ErrNotFound)
	}
	rec.Role = upd.Role
	rec.Status = upd.Status
	rec.RoleExpiresAt = nil
	if upd.RoleExpiresAt != nil {
		t := *upd.RoleExpiresAt
		rec.RoleExpiresAt = &t
	}
	s.users[id] = rec
	out := cloneRecord(rec)
	return &out, nil
}

func (s *MemStore) UpdateProfile(
	_ context.Context,
	id string,
	upd user.ProfileUpdate,
) (*user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	rec, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("update profile: %w", core.ErrNotFound)
	}
	if upd.DisplayName != nil {
		rec.DisplayName = *upd.DisplayName
	}
	if upd.Email != nil {
		rec.Email = *upd.Email
	}
	if upd.PhotoURL != nil {
		photo := *upd.PhotoURL
		rec.PhotoURL = &photo
	}
	s.users[id] = rec
	out := cloneRecord(rec)
	return &out, nil
}

func (s *MemStore) GetByCodeForUpdate(_ context.Context, code string) (*bonuscode.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	for _, c := range s.codes {
		if c.Code == code {
			out := c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("get code: %w", core.ErrNotFound)
}

func (s *MemStore) DecrementUses(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	c, ok := s.codes[id]
	if !ok || c.UsesLeft <= 0 {
		return fmt.Errorf("decrement uses: %w", bonuscode.ErrNoUsesLeft)
	}
	c.UsesLeft--
	s.codes[id] = c
	return nil
}

func (s *MemStore) InTx(
	_ context.Context,
	fn func(users entitlement.TxUserStore, codes entitlement.TxCodeStore) error,
) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	users := maps.Clone(s.users)
	codes := maps.Clone(s.codes)
	s.mu.Unlock()

	if err := fn(s, s); err != nil {
		s.mu.Lock()
		s.users = users
		s.codes = codes
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneRecord(rec user.Record) user.Record {
	if rec.PhotoURL != nil {
		photo := *rec.PhotoURL
		rec.PhotoURL = &photo
	}
	if rec.RoleExpiresAt != nil {
		t := *rec.RoleExpiresAt
		rec.RoleExpiresAt = &t
	}
	rec.SeenNotifications = slices.Clone(rec.SeenNotifications)
	return rec
}

var (
	_ entitlement.UserStore   = (*MemStore)(nil)
	_ entitlement.TxUserStore = (*MemStore)(nil)
	_ entitlement.TxCodeStore = (*MemStore)(nil)
	_ entitlement.TxRunner    = (*MemStore)(nil)
)
