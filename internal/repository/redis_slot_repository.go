package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"token-issuer-service/internal/domain"
)

// ErrRedisUnavailable はRedisへのアクセスに失敗した場合のエラー。
var ErrRedisUnavailable = errors.New("slot redis unavailable")

// RedisSlotRepository はRedis上のキーストアスロットへのアクセスを提供する。
type RedisSlotRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSlotRepository は新しいRedisSlotRepositoryを生成する。
func NewRedisSlotRepository(client redis.UniversalClient, prefix string) *RedisSlotRepository {
	if prefix == "" {
		prefix = "tokenissuer"
	}
	return &RedisSlotRepository{client: client, prefix: prefix}
}

func (r *RedisSlotRepository) key(name string) string {
	return r.prefix + ":slot:" + name
}

// ExistsAny は指定されたスロットのいずれかが存在するか確認する。
func (r *RedisSlotRepository) ExistsAny(ctx context.Context, names ...string) (bool, error) {
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = r.key(n)
	}
	count, err := r.client.Exists(ctx, keys...).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to check slots",
			"operation", "exists_any",
			"names", names,
			"error", err,
		)
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count > 0, nil
}

// CreateAll は MSETNX で全スロットを原子的に作成する。いずれかが既に存在すれば何も書き込まない。
func (r *RedisSlotRepository) CreateAll(ctx context.Context, slots []*domain.Slot) error {
	pairs := make([]any, 0, len(slots)*2)
	names := make([]string, len(slots))
	for i, s := range slots {
		pairs = append(pairs, r.key(s.Name), s.Value)
		names[i] = s.Name
	}

	created, err := r.client.MSetNX(ctx, pairs...).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to create slots",
			"operation", "create_all",
			"names", names,
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !created {
		return domain.ErrSlotAlreadyExists
	}

	now := time.Now()
	for _, s := range slots {
		s.CreatedAt = now
	}
	return nil
}

// FindByName は指定された名前のスロットを取得する。存在しない場合は nil を返す。
func (r *RedisSlotRepository) FindByName(ctx context.Context, name string) (*domain.Slot, error) {
	value, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find slot",
			"operation", "find_by_name",
			"name", name,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return &domain.Slot{Name: name, Value: value}, nil
}
