// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

const flowKeyPrefix = "oidc_flow:"

type FlowRepository interface {
	Save(ctx context.Context, flow *FederatedFlow, ttl time.Duration) error
	// Take returns and deletes the flow so a state value is usable once.
	Take(ctx context.Context, state string) (*FederatedFlow, error)
}

type flowRepository struct {
	client *redis.Client
}

func NewFlowRepository(client *redis.Client) FlowRepository {
	return &flowRepository{client: client}
}

func (r *flowRepository) Save(
	ctx context.Context,
	flow *FederatedFlow,
	ttl time.Duration,
) error {
	payload, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode flow: %w", err)
	}

	if err := r.client.Set(ctx, flowKeyPrefix+flow.State, payload, ttl).Err(); err != nil {
		return core.StorageError("save flow", err)
	}
	return nil
}

func (r *flowRepository) Take(ctx context.Context, state string) (*FederatedFlow, error) {
	payload, err := r.client.GetDel(ctx, flowKeyPrefix+state).Bytes()
	if err != nil {
		return nil, core.RedisError("take flow", err)
	}

	var flow FederatedFlow
	if err := json.Unmarshal(payload, &flow); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &flow, nil
}
