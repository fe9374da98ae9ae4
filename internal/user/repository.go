// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByIDForUpdate(ctx context.Context, id string) (*Record, error)
	Bootstrap(ctx context.Context, rec *Record) (*Record, error)
	ResetExpiredRole(ctx context.Context, id string, now time.Time) (bool, error)
	GrantRole(
		ctx context.Context,
		id string,
		r role.Role,
		expiresAt time.Time,
	) error
	UpdateEntitlement(
		ctx context.Context,
		id string,
		upd EntitlementUpdate,
	) (*Record, error)
	UpdateProfile(
		ctx context.Context,
		id string,
		upd ProfileUpdate,
	) (*Record, error)
	MarkNotificationSeen(
		ctx context.Context,
		id, notificationID string,
	) (bool, error)
	List(ctx context.Context, params ListUsersParams) ([]Record, int, error)
	Stats(ctx context.Context) (*Stats, error)
}

const recordColumns = `id, email, display_name, photo_url, role, status,
		       role_expires_at, seen_notifications, created_at, updated_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM users WHERE id = $1`

	var rec Record
	err := r.db.GetContext(ctx, &rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &rec, nil
}

// GetByIDForUpdate locks the row until the surrounding transaction ends.
func (r *repository) GetByIDForUpdate(
	ctx context.Context,
	id string,
) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	var rec Record
	err := r.db.GetContext(ctx, &rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user for update: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user for update: %w", err)
	}

	return &rec, nil
}

// Bootstrap inserts rec or, when a row with the same id already exists,
// fills only its empty profile fields. Role, status and expiration of an
// existing row are left untouched, so concurrent first logins converge on a
// single record.
func (r *repository) Bootstrap(
	ctx context.Context,
	rec *Record,
) (*Record, error) {
	query := `
		INSERT INTO users (id, email, display_name, photo_url, role, status, role_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email        = COALESCE(NULLIF(users.email, ''), EXCLUDED.email),
			display_name = COALESCE(NULLIF(users.display_name, ''), EXCLUDED.display_name),
			photo_url    = COALESCE(users.photo_url, EXCLUDED.photo_url)
		RETURNING ` + recordColumns

	var stored Record
	err := r.db.GetContext(ctx, &stored, query,
		rec.ID,
		rec.Email,
		rec.DisplayName,
		rec.PhotoURL,
		rec.Role,
		rec.Status,
		rec.RoleExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap user: %w", err)
	}

	return &stored, nil
}

// ResetExpiredRole downgrades a lapsed grant in one conditional statement.
// It reports true only for the call that actually performed the reset.
func (r *repository) ResetExpiredRole(
	ctx context.Context,
	id string,
	now time.Time,
) (bool, error) {
	query := `
		UPDATE users
		SET role = $2, role_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
		  AND role_expires_at IS NOT NULL
		  AND role_expires_at < $3`

	result, err := r.db.ExecContext(ctx, query, id, role.Default, now)
	if err != nil {
		return false, fmt.Errorf("reset expired role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset expired role: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) GrantRole(
	ctx context.Context,
	id string,
	granted role.Role,
	expiresAt time.Time,
) error {
	query := `
		UPDATE users
		SET role = $2, role_expires_at = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, granted, expiresAt)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("grant role: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) UpdateEntitlement(
	ctx context.Context,
	id string,
	upd EntitlementUpdate,
) (*Record, error) {
	query := `
		UPDATE users
		SET role = $2, status = $3, role_expires_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + recordColumns

	var rec Record
	err := r.db.GetContext(ctx, &rec, query,
		id,
		upd.Role,
		upd.Status,
		upd.RoleExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update entitlement: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update entitlement: %w", err)
	}

	return &rec, nil
}

func (r *repository) UpdateProfile(
	ctx context.Context,
	id string,
	upd ProfileUpdate,
) (*Record, error) {
	query := `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
		    email        = COALESCE($3, email),
		    photo_url    = COALESCE($4, photo_url),
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING ` + recordColumns

	var rec Record
	err := r.db.GetContext(ctx, &rec, query,
		id,
		upd.DisplayName,
		upd.Email,
		upd.PhotoURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update profile: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return &rec, nil
}

// MarkNotificationSeen appends notificationID to the seen set unless it is
// already present. It reports whether the set changed.
func (r *repository) MarkNotificationSeen(
	ctx context.Context,
	id, notificationID string,
) (bool, error) {
	query := `
		UPDATE users
		SET seen_notifications = array_append(seen_notifications, $2::text),
		    updated_at = NOW()
		WHERE id = $1
		  AND NOT ($2::text = ANY(seen_notifications))`

	result, err := r.db.ExecContext(ctx, query, id, notificationID)
	if err != nil {
		return false, fmt.Errorf("mark notification seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification seen: %w", err)
	}

	if rows == 1 {
		return true, nil
	}

	var exists bool
	existsQuery := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	if err := r.db.GetContext(ctx, &exists, existsQuery, id); err != nil {
		return false, fmt.Errorf("mark notification seen: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("mark notification seen: %w", core.ErrNotFound)
	}

	return false, nil
}

func (r *repository) List(
	ctx context.Context,
	params ListUsersParams,
) ([]Record, int, error) {
	params.Normalize()

	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(email ILIKE $%d OR display_name ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	if params.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, params.Role)
		argIdx++
	}

	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM users WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+recordColumns+`
		FROM users
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var records []Record
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	return records, total, nil
}

func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT role, status, COUNT(*) AS count
		FROM users
		GROUP BY role, status`

	var rows []struct {
		Role   string `db:"role"`
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	stats := &Stats{ByRole: make(map[string]int, len(role.All))}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByRole[row.Role] += row.Count
		if row.Status == string(StatusBanned) {
			stats.Banned += row.Count
		}
	}

	return stats, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
