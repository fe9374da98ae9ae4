// AngelaMos | 2026
// store.go

package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

const routePrefix = "/v1/blobs/"

var ErrInvalidPath = errors.New("invalid blob path")

type Ref struct {
	Path        string
	ContentType string
	Size        int64
}

type Object struct {
	Path        string    `db:"path"`
	ContentType string    `db:"content_type"`
	Data        []byte    `db:"data"`
	Size        int64     `db:"size"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Store keeps uploaded files and hands out their public URLs.
type Store interface {
	Upload(
		ctx context.Context,
		path string,
		data []byte,
		contentType string,
	) (Ref, error)
	PublicURL(ref Ref) string
	Get(ctx context.Context, path string) (*Object, error)
	Delete(ctx context.Context, path string) error
}

type postgresStore struct {
	db      core.DBTX
	baseURL string
}

func NewPostgresStore(db core.DBTX, publicBaseURL string) Store {
	return &postgresStore{
		db:      db,
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// CleanPath rejects absolute and parent-relative paths and returns the
// canonical form used as the storage key.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// Upload writes data at p, replacing any previous object at the same path.
func (s *postgresStore) Upload(
	ctx context.Context,
	p string,
	data []byte,
	contentType string,
) (Ref, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return Ref{}, err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	query := `
		INSERT INTO blobs (path, content_type, data, size)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			data         = EXCLUDED.data,
			size         = EXCLUDED.size,
			updated_at   = NOW()`

	size := int64(len(data))
	if _, err := s.db.ExecContext(ctx, query, cleaned, contentType, data, size); err != nil {
		return Ref{}, core.StorageError("upload blob", err)
	}

	return Ref{Path: cleaned, ContentType: contentType, Size: size}, nil
}

func (s *postgresStore) PublicURL(ref Ref) string {
	segments := strings.Split(ref.Path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + routePrefix + strings.Join(segments, "/")
}

func (s *postgresStore) Get(ctx context.Context, p string) (*Object, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT path, content_type, data, size, updated_at
		FROM blobs
		WHERE path = $1`

	var obj Object
	err = s.db.GetContext(ctx, &obj, query, cleaned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get blob: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StorageError("get blob", err)
	}

	return &obj, nil
}

func (s *postgresStore) Delete(ctx context.Context, p string) error {
	cleaned, err := CleanPath(p)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE path = $1`, cleaned)
	if err != nil {
		return core.StorageError("delete blob", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return core.StorageError("delete blob", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete blob: %w", core.ErrNotFound)
	}

	return nil
}
