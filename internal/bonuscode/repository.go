// AngelaMos | 2026
// repository.go

package bonuscode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

type Repository interface {
	Create(ctx context.Context, code *Code) error
	List(ctx context.Context) ([]Code, error)
	Delete(ctx context.Context, id string) error
	GetByCode(ctx context.Context, code string) (*Code, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*Code, error)
	DecrementUses(ctx context.Context, id string) error
}

// ErrNoUsesLeft is returned by DecrementUses when the guarded update
// matched no row with remaining uses.
var ErrNoUsesLeft = errors.New("no uses left")

const codeColumns = `id, code, role, duration_days, uses_left, created_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, code *Code) error {
	query := `
		INSERT INTO bonus_codes (id, code, role, duration_days, uses_left)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &code.CreatedAt, query,
		code.ID,
		code.Code,
		code.Role,
		code.DurationDays,
		code.UsesLeft,
	)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create bonus code: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create bonus code: %w", err)
	}

	return nil
}

func (r *repository) List(ctx context.Context) ([]Code, error) {
	query := `SELECT ` + codeColumns + ` FROM bonus_codes ORDER BY created_at DESC`

	var codes []Code
	if err := r.db.SelectContext(ctx, &codes, query); err != nil {
		return nil, fmt.Errorf("list bonus codes: %w", err)
	}

	return codes, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bonus_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bonus code: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bonus code: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete bonus code: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Code, error) {
	return r.getByCode(ctx, code, false)
}

// GetByCodeForUpdate locks the code row until the surrounding transaction
// ends, serializing concurrent redemptions of the same code.
func (r *repository) GetByCodeForUpdate(
	ctx context.Context,
	code string,
) (*Code, error) {
	return r.getByCode(ctx, code, true)
}

func (r *repository) getByCode(
	ctx context.Context,
	code string,
	forUpdate bool,
) (*Code, error) {
	query := `SELECT ` + codeColumns + ` FROM bonus_codes WHERE code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var c Code
	err := r.db.GetContext(ctx, &c, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get bonus code: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get bonus code: %w", err)
	}

	return &c, nil
}

func (r *repository) DecrementUses(ctx context.Context, id string) error {
	query := `
		UPDATE bonus_codes
		SET uses_left = uses_left - 1
		WHERE id = $1 AND uses_left > 0`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		if core.IsCheckViolation(err) {
			return fmt.Errorf("decrement uses: %w", ErrNoUsesLeft)
		}
		return fmt.Errorf("decrement uses: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement uses: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("decrement uses: %w", ErrNoUsesLeft)
	}

	return nil
}
