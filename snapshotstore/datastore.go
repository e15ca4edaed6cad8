package snapshotstore

import (
	"context"
	"strings"
	"sync"

	ds "github.com/ipfs/go-datastore"
	dsquery "github.com/ipfs/go-datastore/query"
	"github.com/pkg/errors"

	"github.com/totomo/luvtree/common"
)

// DatastoreStore stores snapshots in an IPFS datastore under /<prefix>/snapshots/<key>.
type DatastoreStore struct {
	store   ds.Datastore
	options *Options
	mu      sync.Mutex
}

var _ Store = (*DatastoreStore)(nil)

// NewDatastoreStore creates a store on store.
func NewDatastoreStore(store ds.Datastore, opts ...Option) *DatastoreStore {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &DatastoreStore{store: store, options: options}
}

func (s *DatastoreStore) root() string {
	return "/" + s.options.KeyPrefix + "/snapshots/"
}

func (s *DatastoreStore) key(key string) ds.Key {
	return ds.NewKey(s.root() + key)
}

// Put stores data under key.
func (s *DatastoreStore) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	if err := s.store.Put(ctx, s.key(key), data); err != nil {
		return errors.Wrapf(err, "failed to store snapshot %s", key)
	}
	return nil
}

// Get returns the data stored under key.
func (s *DatastoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	data, err := s.store.Get(ctx, s.key(key))
	if err != nil {
		if err == ds.ErrNotFound {
			return nil, common.ErrNodeNotFound{Path: key}
		}
		return nil, errors.Wrapf(err, "failed to get snapshot %s", key)
	}
	return data, nil
}

// Has reports whether key exists.
func (s *DatastoreStore) Has(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	exists, err := s.store.Has(ctx, s.key(key))
	if err != nil {
		return false, errors.Wrapf(err, "failed to check snapshot %s", key)
	}
	return exists, nil
}

// Delete removes key.
func (s *DatastoreStore) Delete(ctx context.Context, key string) error {
	exists, err := s.Has(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return common.ErrNodeNotFound{Path: key}
	}
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()
	if err := s.store.Delete(ctx, s.key(key)); err != nil {
		return errors.Wrapf(err, "failed to delete snapshot %s", key)
	}
	return nil
}

// Keys returns every stored key.
func (s *DatastoreStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := s.options.withTimeout(ctx)
	defer cancel()

	results, err := s.store.Query(ctx, dsquery.Query{Prefix: s.root(), KeysOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query snapshots")
	}
	defer results.Close()

	var keys []string
	for {
		result, ok := results.NextSync()
		if !ok {
			break
		}
		if result.Error != nil {
			return nil, errors.Wrap(result.Error, "failed to read snapshot key")
		}
		keys = append(keys, strings.TrimPrefix(result.Key, s.root()))
	}
	return keys, nil
}

// Update replaces the data under key with fn(current). Updates through this store
// are serialized.
func (s *DatastoreStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, next)
}

// Close closes the underlying datastore.
func (s *DatastoreStore) Close() error {
	return s.store.Close()
}
