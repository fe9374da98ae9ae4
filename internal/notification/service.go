// AngelaMos | 2026
// service.go

package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const DefaultFeedLimit = 20

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*user.Record, error)
	MarkNotificationSeen(ctx context.Context, id, notificationID string) (bool, error)
}

type Service struct {
	repo      Repository
	users     UserDirectory
	broker    Broker
	feedLimit int
	logger    *slog.Logger
}

func NewService(
	repo Repository,
	users UserDirectory,
	broker Broker,
	feedLimit int,
	logger *slog.Logger,
) *Service {
	if feedLimit <= 0 {
		feedLimit = DefaultFeedLimit
	}
	return &Service{
		repo:      repo,
		users:     users,
		broker:    broker,
		feedLimit: feedLimit,
		logger:    logger,
	}
}

// Send stores the notification and then publishes it. A publish failure is
// logged only: the notification is durable and shows up on the next feed
// read.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Notification, error) {
	audience, isUser := audienceKind(req.Audience)
	if isUser {
		if _, err := s.users.GetUser(ctx, audience); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, fmt.Errorf("send notification: %w: %w",
					core.ErrInvalidInput, ErrUnknownAudience)
			}
			return nil, core.StorageError("send notification", err)
		}
	}

	n := &Notification{
		ID:       uuid.NewString(),
		Title:    strings.TrimSpace(req.Title),
		Message:  strings.TrimSpace(req.Message),
		Audience: audience,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, core.StorageError("send notification", err)
	}

	if err := s.broker.Publish(ctx, n); err != nil {
		s.logger.Warn("notification publish failed",
			"notification_id", n.ID,
			"error", err,
		)
	}

	s.logger.Info("notification sent",
		"notification_id", n.ID,
		"audience", n.Audience,
	)
	return n, nil
}

// Feed returns the latest notifications visible to uid with effective role
// r, newest first, marking those already in seen.
func (s *Service) Feed(
	ctx context.Context,
	uid string,
	r role.Role,
	seen []string,
) (*Feed, error) {
	if uid == "" {
		return nil, fmt.Errorf("notification feed: %w", core.ErrNotAuthenticated)
	}

	items, err := s.repo.Feed(ctx, Audiences(uid, r), s.feedLimit)
	if err != nil {
		return nil, core.StorageError("notification feed", err)
	}

	feed := &Feed{Items: make([]FeedItem, 0, len(items))}
	for _, n := range items {
		isSeen := slices.Contains(seen, n.ID)
		if !isSeen {
			feed.HasUnread = true
		}
		feed.Items = append(feed.Items, FeedItem{Notification: n, Seen: isSeen})
	}

	return feed, nil
}

// MarkSeen adds notificationID to the user's seen set. Marking twice is a
// no-op.
func (s *Service) MarkSeen(ctx context.Context, uid, notificationID string) error {
	if uid == "" {
		return fmt.Errorf("mark seen: %w", core.ErrNotAuthenticated)
	}
	if _, err := uuid.Parse(notificationID); err != nil {
		return fmt.Errorf("mark seen: %w", core.ErrNotFound)
	}

	if _, err := s.repo.GetByID(ctx, notificationID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return core.StorageError("mark seen", err)
	}

	if _, err := s.users.MarkNotificationSeen(ctx, uid, notificationID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("mark seen: %w", core.ErrNotAuthenticated)
		}
		return core.StorageError("mark seen", err)
	}
	return nil
}

func (s *Service) Subscribe(
	ctx context.Context,
	uid string,
	r role.Role,
) (*Subscription, error) {
	if uid == "" {
		return nil, fmt.Errorf("subscribe: %w", core.ErrNotAuthenticated)
	}
	return s.broker.Subscribe(ctx, uid, r)
}

func (s *Service) List(ctx context.Context, page, pageSize int) ([]Notification, int, error) {
	items, total, err := s.repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, core.StorageError("list notifications", err)
	}
	return items, total, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("delete notification: %w", core.ErrNotFound)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return core.StorageError("delete notification", err)
	}
	s.logger.Info("notification deleted", "notification_id", id)
	return nil
}
