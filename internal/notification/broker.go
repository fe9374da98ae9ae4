// AngelaMos | 2026
// broker.go

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

const subscriptionBuffer = 16

// Broker fans new notifications out to live subscribers on every instance.
type Broker interface {
	Publish(ctx context.Context, n *Notification) error
	Subscribe(ctx context.Context, uid string, r role.Role) (*Subscription, error)
}

// Subscription delivers notifications addressed to one user until Close.
type Subscription struct {
	C <-chan Notification

	closeOnce sync.Once
	stop      func() error
}

// Close releases the underlying subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stop()
	})
	return err
}

type redisBroker struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisBroker(client *redis.Client, channel string, logger *slog.Logger) Broker {
	return &redisBroker{client: client, channel: channel, logger: logger}
}

func (b *redisBroker) Publish(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return core.StorageError("publish notification", err)
	}
	return nil
}

func (b *redisBroker) Subscribe(
	ctx context.Context,
	uid string,
	r role.Role,
) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, core.StorageError("subscribe notifications", err)
	}

	out := make(chan Notification, subscriptionBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.logger.Warn("drop malformed notification", "error", err)
					continue
				}
				if !n.Targets(uid, r) {
					continue
				}
				select {
				case out <- n:
				case <-done:
					return
				}
			}
		}
	}()

	return &Subscription{
		C: out,
		stop: func() error {
			close(done)
			return pubsub.Close()
		},
	}, nil
}
