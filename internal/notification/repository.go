// AngelaMos | 2026
// repository.go

package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id string) (*Notification, error)
	Feed(ctx context.Context, audiences []string, limit int) ([]Notification, error)
	List(ctx context.Context, limit, offset int) ([]Notification, int, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const columns = `id, title, message, audience, created_at`

func (r *repository) Create(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (id, title, message, audience)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &n.CreatedAt, query,
		n.ID, n.Title, n.Message, n.Audience)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Notification, error) {
	query := `SELECT ` + columns + ` FROM notifications WHERE id = $1`

	var n Notification
	err := r.db.GetContext(ctx, &n, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get notification: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// Feed returns the newest notifications addressed to any of audiences.
func (r *repository) Feed(
	ctx context.Context,
	audiences []string,
	limit int,
) ([]Notification, error) {
	query := `
		SELECT ` + columns + `
		FROM notifications
		WHERE audience = ANY($1)
		ORDER BY created_at DESC, id
		LIMIT $2`

	var items []Notification
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(audiences), limit); err != nil {
		return nil, fmt.Errorf("notification feed: %w", err)
	}
	return items, nil
}

func (r *repository) List(
	ctx context.Context,
	limit, offset int,
) ([]Notification, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := `
		SELECT ` + columns + `
		FROM notifications
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	var items []Notification
	if err := r.db.SelectContext(ctx, &items, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete notification: %w", core.ErrNotFound)
	}
	return nil
}
