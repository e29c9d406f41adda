package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
)

const defaultRedisNamespace = "offline"

// RedisCacheStorage persists named cache stores in Redis.
//
// Layout under the namespace ns:
//
//	ns:stores                 set of store names
//	ns:store:<name>:index     sorted set of keys scored by write time
//	ns:store:<name>:entry:<k> JSON encoded models.CachedResponse
type RedisCacheStorage struct {
	client    *redis.Client
	namespace string
	logger    *zap.Logger
}

// NewRedisCacheStorage constructs a Redis backed storage.
func NewRedisCacheStorage(client *redis.Client, namespace string, logger *zap.Logger) *RedisCacheStorage {
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCacheStorage{client: client, namespace: namespace, logger: logger}
}

func (r *RedisCacheStorage) storesKey() string {
	return r.namespace + ":stores"
}

func (r *RedisCacheStorage) indexKey(store string) string {
	return fmt.Sprintf("%s:store:%s:index", r.namespace, store)
}

func (r *RedisCacheStorage) entryKey(store, key string) string {
	return fmt.Sprintf("%s:store:%s:entry:%s", r.namespace, store, key)
}

// Match retrieves and unmarshals the cached response for key.
func (r *RedisCacheStorage) Match(ctx context.Context, store, key string) (*models.CachedResponse, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.entryKey(store, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry models.CachedResponse
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry for %s: %w", key, err)
	}
	return &entry, nil
}

// Put stores entry and records it in the store's index and the store set.
func (r *RedisCacheStorage) Put(ctx context.Context, store string, entry *models.CachedResponse) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry for %s: %w", entry.URL, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.storesKey(), store)
		pipe.ZAdd(ctx, r.indexKey(store), redis.Z{Score: float64(entry.StoredAt.UnixNano()), Member: entry.URL})
		pipe.Set(ctx, r.entryKey(store, entry.URL), payload, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", entry.URL, err)
	}
	return nil
}

// Delete removes one entry.
func (r *RedisCacheStorage) Delete(ctx context.Context, store, key string) error {
	if r.client == nil {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.indexKey(store), key)
		pipe.Del(ctx, r.entryKey(store, key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Keys lists a store's keys, oldest first.
func (r *RedisCacheStorage) Keys(ctx context.Context, store string) ([]string, error) {
	if r.client == nil {
		return nil, nil
	}
	keys, err := r.client.ZRange(ctx, r.indexKey(store), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list keys of %s: %w", store, err)
	}
	return keys, nil
}

// Stores lists every store name in sorted order.
func (r *RedisCacheStorage) Stores(ctx context.Context) ([]string, error) {
	if r.client == nil {
		return nil, nil
	}
	names, err := r.client.SMembers(ctx, r.storesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list stores: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteStore removes every key of store by scanning its prefix.
func (r *RedisCacheStorage) DeleteStore(ctx context.Context, store string) error {
	if r.client == nil {
		return nil
	}

	pattern := fmt.Sprintf("%s:store:%s:*", r.namespace, store)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}

	if err := r.client.SRem(ctx, r.storesKey(), store).Err(); err != nil {
		return fmt.Errorf("redis forget store %s: %w", store, err)
	}
	r.logger.Debug("cache store deleted", zap.String("store", store))
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *RedisCacheStorage) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
