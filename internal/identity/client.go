// AngelaMos | 2026
// client.go

package identity

import (
	"context"
	"fmt"
	"sync"
)

// Accounts is the directory surface a Client needs.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*Identity, error)
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
	LinkFederated(ctx context.Context, claims FederatedClaims) (*Identity, error)
	Lookup(ctx context.Context, uid string) (*Identity, error)
	UpdateDisplayName(ctx context.Context, uid, name string) (*Identity, error)
	UpdateEmail(ctx context.Context, uid, email string) (*Identity, error)
	UpdatePassword(ctx context.Context, uid, password string) (*Identity, error)
	UpdatePhotoURL(ctx context.Context, uid, url string) (*Identity, error)
}

// Client is the per-session Provider. Sign-in state lives here; account
// data lives in the shared directory.
type Client struct {
	accounts Accounts

	mu        sync.Mutex
	current   *Identity
	listeners map[uint64]Listener
	nextID    uint64
}

func NewClient(accounts Accounts) *Client {
	return &Client{
		accounts:  accounts,
		listeners: make(map[uint64]Listener),
	}
}

// Restore signs the session back in as uid without credentials. Used when a
// session is rehydrated from its persisted token.
func (c *Client) Restore(ctx context.Context, uid string) (*Identity, error) {
	id, err := c.accounts.Lookup(ctx, uid)
	if err != nil {
		return nil, err
	}
	c.setCurrent(ctx, id)
	return id.clone(), nil
}

func (c *Client) CreateAccount(
	ctx context.Context,
	email, password string,
) (*Identity, error) {
	id, err := c.accounts.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setCurrent(ctx, id)
	return id.clone(), nil
}

func (c *Client) SignIn(
	ctx context.Context,
	email, password string,
) (*Identity, error) {
	id, err := c.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setCurrent(ctx, id)
	return id.clone(), nil
}

func (c *Client) SignInFederated(
	ctx context.Context,
	claims FederatedClaims,
) (*Identity, error) {
	id, err := c.accounts.LinkFederated(ctx, claims)
	if err != nil {
		return nil, err
	}
	c.setCurrent(ctx, id)
	return id.clone(), nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.setCurrent(ctx, nil)
	return nil
}

func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.clone()
}

func (c *Client) UpdateDisplayName(ctx context.Context, name string) error {
	return c.updateProfile(ctx, func(uid string) (*Identity, error) {
		return c.accounts.UpdateDisplayName(ctx, uid, name)
	})
}

func (c *Client) UpdateEmail(ctx context.Context, email string) error {
	return c.updateProfile(ctx, func(uid string) (*Identity, error) {
		return c.accounts.UpdateEmail(ctx, uid, email)
	})
}

func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	return c.updateProfile(ctx, func(uid string) (*Identity, error) {
		return c.accounts.UpdatePassword(ctx, uid, password)
	})
}

func (c *Client) UpdatePhotoURL(ctx context.Context, url string) error {
	return c.updateProfile(ctx, func(uid string) (*Identity, error) {
		return c.accounts.UpdatePhotoURL(ctx, uid, url)
	})
}

// updateProfile refreshes the cached identity in place. Profile edits are
// not sign-in events, so listeners are not notified.
func (c *Client) updateProfile(
	_ context.Context,
	apply func(uid string) (*Identity, error),
) error {
	cur := c.Current()
	if cur == nil {
		return errNoCurrentUser
	}

	updated, err := apply(cur.UID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	c.mu.Lock()
	if c.current != nil && c.current.UID == updated.UID {
		c.current = updated.clone()
	}
	c.mu.Unlock()

	return nil
}

// OnIdentityChange registers fn and invokes it immediately with the current
// identity. The returned function unregisters fn.
func (c *Client) OnIdentityChange(
	ctx context.Context,
	fn Listener,
) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	current := c.current.clone()
	c.mu.Unlock()

	fn(ctx, current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) setCurrent(ctx context.Context, id *Identity) {
	c.mu.Lock()
	c.current = id.clone()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, id.clone())
	}
}

var _ Provider = (*Client)(nil)
