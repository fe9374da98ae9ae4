// AngelaMos | 2026
// accounts.go

package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
)

// MemAccounts is an identity.Repository over a map with the same unique
// constraints as the accounts table.
type MemAccounts struct {
	mu    sync.Mutex
	byUID map[string]identity.Account
}

func NewMemAccounts() *MemAccounts {
	return &MemAccounts{byUID: make(map[string]identity.Account)}
}

func (m *MemAccounts) Create(_ context.Context, acct *identity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUniqueLocked(acct); err != nil {
		return err
	}
	if _, ok := m.byUID[acct.UID]; ok {
		return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
	}

	now := time.Now()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	m.byUID[acct.UID] = cloneAccount(*acct)
	return nil
}

func (m *MemAccounts) GetByUID(_ context.Context, uid string) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.byUID[uid]
	if !ok {
		return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
	}
	out := cloneAccount(acct)
	return &out, nil
}

func (m *MemAccounts) GetByEmail(_ context.Context, email string) (*identity.Account, error) {
	return m.find(func(a identity.Account) bool { return a.Email == email })
}

func (m *MemAccounts) GetBySubject(_ context.Context, subject string) (*identity.Account, error) {
	return m.find(func(a identity.Account) bool {
		return a.OIDCSubject != nil && *a.OIDCSubject == subject
	})
}

func (m *MemAccounts) Update(_ context.Context, acct *identity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUID[acct.UID]; !ok {
		return fmt.Errorf("update account: %w", core.ErrNotFound)
	}
	if err := m.checkUniqueLocked(acct); err != nil {
		return err
	}

	acct.UpdatedAt = time.Now()
	m.byUID[acct.UID] = cloneAccount(*acct)
	return nil
}

func (m *MemAccounts) find(match func(identity.Account) bool) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acct := range m.byUID {
		if match(acct) {
			out := cloneAccount(acct)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("find account: %w", core.ErrNotFound)
}

func (m *MemAccounts) checkUniqueLocked(acct *identity.Account) error {
	for uid, other := range m.byUID {
		if uid == acct.UID {
			continue
		}
		if other.Email == acct.Email {
			return fmt.Errorf("account email: %w", core.ErrDuplicateKey)
		}
		if acct.OIDCSubject != nil && other.OIDCSubject != nil &&
			*acct.OIDCSubject == *other.OIDCSubject {
			return fmt.Errorf("account subject: %w", core.ErrDuplicateKey)
		}
	}
	return nil
}

func cloneAccount(a identity.Account) identity.Account {
	if a.PasswordHash != nil {
		h := *a.PasswordHash
		a.PasswordHash = &h
	}
	if a.PhotoURL != nil {
		p := *a.PhotoURL
		a.PhotoURL = &p
	}
	if a.OIDCSubject != nil {
		s := *a.OIDCSubject
		a.OIDCSubject = &s
	}
	return a
}

var _ identity.Repository = (*MemAccounts)(nil)
