// AngelaMos | 2026
// store.go

package entitlement

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/bonuscode"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

// UserStore is the subset of the user repository the manager needs outside
// a transaction.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*user.Record, error)
	Bootstrap(ctx context.Context, rec *user.Record) (*user.Record, error)
	ResetExpiredRole(ctx context.Context, id string, now time.Time) (bool, error)
	UpdateEntitlement(
		ctx context.Context,
		id string,
		upd user.EntitlementUpdate,
	) (*user.Record, error)
}

type TxUserStore interface {
	GetByIDForUpdate(ctx context.Context, id string) (*user.Record, error)
	GrantRole(
		ctx context.Context,
		id string,
		r role.Role,
		expiresAt time.Time,
	) error
}

type TxCodeStore interface {
	GetByCodeForUpdate(ctx context.Context, code string) (*bonuscode.Code, error)
	DecrementUses(ctx context.Context, id string) error
}

// TxRunner runs fn inside one all-or-nothing unit. Any error returned by fn
// discards every write made through the stores it was given.
type TxRunner interface {
	InTx(
		ctx context.Context,
		fn func(users TxUserStore, codes TxCodeStore) error,
	) error
}

type postgresTxRunner struct {
	db *sqlx.DB
}

func NewPostgresTxRunner(db *sqlx.DB) TxRunner {
	return &postgresTxRunner{db: db}
}

func (r *postgresTxRunner) InTx(
	ctx context.Context,
	fn func(users TxUserStore, codes TxCodeStore) error,
) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return core.InTxWithOptions(ctx, r.db, opts, func(tx *sqlx.Tx) error {
		return fn(user.NewRepository(tx), bonuscode.NewRepository(tx))
	})
}
