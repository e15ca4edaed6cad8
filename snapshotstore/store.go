// Package snapshotstore persists tree snapshots as JSON documents and rolls them forward
// with emitted patches.
package snapshotstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/totomo/luvtree/internal/lvlog"
	"github.com/totomo/luvtree/jsonpatch"
	"github.com/totomo/luvtree/tree"
)

// Store is a key/value store of JSON snapshot documents.
// Missing keys are reported as common.ErrNodeNotFound.
type Store interface {
	// Put stores data under key.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the data stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Has reports whether key exists.
	Has(ctx context.Context, key string) (bool, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// Keys returns every stored key.
	Keys(ctx context.Context) ([]string, error)
	// Update replaces the data under key with fn(current) atomically with respect to
	// other updates of the same key.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	// Close releases the store.
	Close() error
}

// Options configures a store.
type Options struct {
	// KeyPrefix namespaces every key of the store.
	KeyPrefix string
	// Timeout bounds each store operation. Zero means no timeout.
	Timeout time.Duration
}

// DefaultOptions returns the default store options.
func DefaultOptions() *Options {
	return &Options{
		KeyPrefix: "luvtree",
		Timeout:   10 * time.Second,
	}
}

// Option sets a store option.
type Option func(*Options)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) {
		o.KeyPrefix = prefix
	}
}

// WithTimeout sets the per operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

func (o *Options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// Save stores the current snapshot of n under key.
func Save(ctx context.Context, s Store, key string, n *tree.Node) error {
	data, err := json.Marshal(n.Snapshot())
	if err != nil {
		return errors.Wrapf(err, "failed to encode snapshot of %s", n.Type().Name())
	}
	if err := s.Put(ctx, key, data); err != nil {
		return errors.Wrapf(err, "failed to save %s", key)
	}
	return nil
}

// Load creates a new tree of typ from the snapshot stored under key.
func Load(ctx context.Context, s Store, key string, typ tree.ComplexType, opts ...tree.CreateOption) (tree.Instance, error) {
	v, err := loadValue(ctx, s, key)
	if err != nil {
		return nil, err
	}
	inst, err := tree.Create(typ, v, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to restore %s", key)
	}
	return inst, nil
}

// LoadInto applies the snapshot stored under key onto the live node n, reconciling
// existing children. Patches are emitted for the differences.
func LoadInto(ctx context.Context, s Store, key string, n *tree.Node) error {
	v, err := loadValue(ctx, s, key)
	if err != nil {
		return err
	}
	return tree.RunInAction(n, func() error {
		return n.ApplySnapshot(v)
	})
}

func loadValue(ctx context.Context, s Store, key string) (interface{}, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrapf(err, "failed to decode snapshot %s", key)
	}
	return v, nil
}

// AppendPatches rolls the snapshot stored under key forward by applying patches.
// Patch paths are JSON pointers from the stored root.
func AppendPatches(ctx context.Context, s Store, key string, patches []jsonpatch.Patch) error {
	if len(patches) == 0 {
		return nil
	}
	err := s.Update(ctx, key, func(current []byte) ([]byte, error) {
		return jsonpatch.ApplyToDocument(current, patches)
	})
	if err != nil {
		lvlog.Named("snapshotstore").Error("failed to append patches",
			zap.String("key", key), zap.Int("patches", len(patches)), zap.Error(err))
		return errors.Wrapf(err, "failed to append patches to %s", key)
	}
	return nil
}

// Autosave appends every batch of patches emitted under n to key. The snapshot of n is
// saved first. Patches are written when flush is called; the returned stop function
// detaches the listener.
func Autosave(ctx context.Context, s Store, key string, n *tree.Node) (flush func(ctx context.Context) error, stop func(), err error) {
	if err := Save(ctx, s, key, n); err != nil {
		return nil, nil, err
	}
	var pending []jsonpatch.Patch
	dispose := n.OnPatch(func(p jsonpatch.Patch, _ *tree.Node) {
		pending = append(pending, p)
	})
	flush = func(ctx context.Context) error {
		if err := AppendPatches(ctx, s, key, pending); err != nil {
			return err
		}
		pending = nil
		return nil
	}
	return flush, dispose, nil
}
