package snapshotstore

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/totomo/luvtree/common"
)

// RedisStore stores snapshots as Redis strings under <prefix>:snapshot:<key>.
type RedisStore struct {
	client  *redis.Client
	options *Options
}

var _ Store = (*RedisStore)(nil)

// maxUpdateRetries bounds the optimistic retries of Update.
const maxUpdateRetries = 10

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &RedisStore{client: client, options: options}
}

func (s *RedisStore) root() string {
	return s.options.KeyPrefix + ":snapshot:"
}

func (s *RedisStore) key(key string) string {
	return s.root() + key
}

// Put stores data under key.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to store snapshot %s", key)
	}
	return nil
}

// Get returns the data stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, common.ErrNodeNotFound{Path: key}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get snapshot %s", key)
	}
	return data, nil
}

// Has reports whether key exists.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to check snapshot %s", key)
	}
	return n > 0, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to delete snapshot %s", key)
	}
	if n == 0 {
		return common.ErrNodeNotFound{Path: key}
	}
	return nil
}

// Keys returns every stored key.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, s.root()+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.root()))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan snapshots")
	}
	return keys, nil
}

// Update replaces the data under key with fn(current) inside an optimistic
// WATCH/MULTI transaction, retrying when another client wrote the key meanwhile.
func (s *RedisStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	k := s.key(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			return common.ErrNodeNotFound{Path: key}
		}
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return errors.Errorf("failed to update snapshot %s: too many concurrent writers", key)
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
