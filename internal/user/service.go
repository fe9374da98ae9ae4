// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetUser(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("get user: %w", core.ErrNotAuthenticated)
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, core.StorageError("get user", err)
	}
	return rec, err
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]Record, int, error) {
	records, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, core.StorageError("list users", err)
	}
	return records, total, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, core.StorageError("user stats", err)
	}
	return stats, nil
}

// UpdateProfile writes the changed profile fields in a single statement.
// Emails are stored lower-cased.
func (s *Service) UpdateProfile(
	ctx context.Context,
	id string,
	upd ProfileUpdate,
) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("update profile: %w", core.ErrNotAuthenticated)
	}

	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		upd.Email = &email
	}

	var (
		rec *Record
		err error
	)
	if upd.Empty() {
		rec, err = s.repo.GetByID(ctx, id)
	} else {
		rec, err = s.repo.UpdateProfile(ctx, id, upd)
	}
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, core.StorageError("update profile", err)
	}
	return rec, err
}

func (s *Service) MarkNotificationSeen(
	ctx context.Context,
	id, notificationID string,
) (bool, error) {
	if id == "" {
		return false, fmt.Errorf(
			"mark notification seen: %w",
			core.ErrNotAuthenticated,
		)
	}
	if notificationID == "" {
		return false, fmt.Errorf(
			"mark notification seen: %w",
			core.ErrInvalidInput,
		)
	}

	changed, err := s.repo.MarkNotificationSeen(ctx, id, notificationID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return false, core.StorageError("mark notification seen", err)
	}
	return changed, err
}
