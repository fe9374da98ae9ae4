// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// FederatedFlow is the server-side half of an authorization-code login,
// keyed by the state parameter until the callback consumes it.
type FederatedFlow struct {
	State     string    `json:"state"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *FederatedFlow) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(f.CreatedAt) > ttl
}
