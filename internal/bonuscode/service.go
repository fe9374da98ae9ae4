// AngelaMos | 2026
// service.go

package bonuscode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

type Service struct {
	repo     Repository
	generate func() (string, error)
	logger   *slog.Logger
}

type Option func(*Service)

// WithGenerator replaces the random code source.
func WithGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.generate = fn
	}
}

func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger,
		generate: func() (string, error) {
			return core.GenerateBase36(CodeLength)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a new code, retrying with a fresh random value when the
// generated one collides with an existing code.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Code, error) {
	granted, err := role.Parse(req.Role)
	if err != nil {
		return nil, fmt.Errorf("create bonus code: %w: %w", core.ErrInvalidInput, err)
	}
	if req.DurationDays < 1 || req.Uses < 1 {
		return nil, fmt.Errorf(
			"create bonus code: duration and uses must be positive: %w",
			core.ErrInvalidInput,
		)
	}

	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("create bonus code: %w", err)
		}

		code := &Code{
			ID:           uuid.NewString(),
			Code:         Normalize(value),
			Role:         granted,
			DurationDays: req.DurationDays,
			UsesLeft:     req.Uses,
		}

		err = s.repo.Create(ctx, code)
		if err == nil {
			s.logger.Info("bonus code created",
				"code_id", code.ID,
				"role", code.Role,
				"duration_days", code.DurationDays,
				"uses", code.UsesLeft,
			)
			return code, nil
		}
		if !errors.Is(err, core.ErrDuplicateKey) {
			return nil, err
		}

		s.logger.Debug("bonus code collision, retrying", "attempt", attempt)
	}

	return nil, fmt.Errorf("create bonus code: %w", ErrCodeCollision)
}

func (s *Service) List(ctx context.Context) ([]Code, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("bonus code deleted", "code_id", id)
	return nil
}
