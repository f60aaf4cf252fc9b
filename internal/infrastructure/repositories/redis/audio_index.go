package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

func audioIndexKey(prefix string) string {
	return prefix + "audio:index"
}

// RedisAudioIndex keeps object metadata as JSON values plus a sorted set
// scored by creation time in unix millis.
type RedisAudioIndex struct {
	client *redis.Client
	prefix string
}

func NewRedisAudioIndex(client *redis.Client, prefix string) ports.AudioIndex {
	return &RedisAudioIndex{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisAudioIndex) objectKey(name string) string {
	return r.prefix + "audio:obj:" + name
}

func (r *RedisAudioIndex) Put(ctx context.Context, obj *domain.AudioObject) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal audio object: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.objectKey(obj.Name), data, 0)
		pipe.ZAdd(ctx, audioIndexKey(r.prefix), redis.Z{
			Score:  float64(obj.CreatedAt.UnixMilli()),
			Member: obj.Name,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store audio object in Redis: %w", err)
	}
	return nil
}

func (r *RedisAudioIndex) Get(ctx context.Context, name string) (*domain.AudioObject, error) {
	data, err := r.client.Get(ctx, r.objectKey(name)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrAudioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audio object from Redis: %w", err)
	}

	var obj domain.AudioObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audio object: %w", err)
	}
	return &obj, nil
}

func (r *RedisAudioIndex) Delete(ctx context.Context, name string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.objectKey(name))
		pipe.ZRem(ctx, audioIndexKey(r.prefix), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete audio object from Redis: %w", err)
	}
	return nil
}

func (r *RedisAudioIndex) CreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.AudioObject, error) {
	names, err := r.client.ZRangeByScore(ctx, audioIndexKey(r.prefix), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query audio index in Redis: %w", err)
	}

	var objects []*domain.AudioObject
	for _, name := range names {
		obj, err := r.Get(ctx, name)
		if err == domain.ErrAudioNotFound {
			// metadata gone, keep the name so the sweeper clears the index
			objects = append(objects, &domain.AudioObject{Name: name})
			continue
		}
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func (r *RedisAudioIndex) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, audioIndexKey(r.prefix)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count audio objects in Redis: %w", err)
	}
	return int(n), nil
}
