package lastresult

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"medlens/internal/common/errors"
	"medlens/internal/models"
)

// RedisStore keeps the slot under Key with no expiry.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Save(ctx context.Context, result *models.AnalysisResult, interactions []models.InteractionWarning) error {
	payload, err := json.Marshal(newRecord(result, interactions))
	if err != nil {
		return errors.NewLastResultStoreError("save", fmt.Errorf("marshal record: %w", err))
	}
	if err := r.client.Set(ctx, Key, payload, 0).Err(); err != nil {
		return errors.NewLastResultStoreError("save", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) (*Record, error) {
	payload, err := r.client.Get(ctx, Key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewLastResultStoreError("load", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, errors.NewLastResultStoreError("load", fmt.Errorf("decode record: %w", err))
	}
	return &record, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, Key).Err(); err != nil {
		return errors.NewLastResultStoreError("clear", err)
	}
	return nil
}
