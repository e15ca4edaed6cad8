package patchbus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/totomo/luvtree/internal/lvlog"
	"github.com/totomo/luvtree/jsonpatch"
	"github.com/totomo/luvtree/tree"
)

// ReplicaOptions configures Broadcaster and Follower.
type ReplicaOptions struct {
	// Source identifies the publishing tree. Defaults to the root node ID.
	Source string
	// Format is the payload encoding used by a Broadcaster.
	Format EncodingFormat
	// IgnoreSource makes a Follower skip batches published by that source.
	IgnoreSource string
	// OnApplied is called by a Follower after each applied batch.
	OnApplied func(b *Batch)
}

// DefaultReplicaOptions returns the default replica options.
func DefaultReplicaOptions() *ReplicaOptions {
	return &ReplicaOptions{
		Format: EncodingFormatJSON,
	}
}

// ReplicaOption sets a replica option.
type ReplicaOption func(*ReplicaOptions)

// WithSource sets the source identifier of published batches.
func WithSource(source string) ReplicaOption {
	return func(o *ReplicaOptions) {
		o.Source = source
	}
}

// WithFormat sets the payload encoding of published batches.
func WithFormat(format EncodingFormat) ReplicaOption {
	return func(o *ReplicaOptions) {
		o.Format = format
	}
}

// WithIgnoreSource makes a follower skip the batches of source.
func WithIgnoreSource(source string) ReplicaOption {
	return func(o *ReplicaOptions) {
		o.IgnoreSource = source
	}
}

// WithOnApplied registers fn to run after each batch a follower applies.
func WithOnApplied(fn func(b *Batch)) ReplicaOption {
	return func(o *ReplicaOptions) {
		o.OnApplied = fn
	}
}

// Broadcaster collects the patches emitted under a node and publishes them as batches.
type Broadcaster struct {
	pub    Publisher
	topic  string
	source string
	format EncodingFormat
	codec  Codec

	mutex    sync.Mutex
	pending  []jsonpatch.Patch
	sequence uint64
	dispose  func()
}

// NewBroadcaster starts collecting the patches emitted under n. Nothing is published
// until Flush.
func NewBroadcaster(n *tree.Node, pub Publisher, topic string, opts ...ReplicaOption) (*Broadcaster, error) {
	options := DefaultReplicaOptions()
	for _, opt := range opts {
		opt(options)
	}
	codec, err := CodecFor(options.Format)
	if err != nil {
		return nil, err
	}
	if options.Source == "" {
		options.Source = n.Root().ID().String()
	}

	b := &Broadcaster{
		pub:    pub,
		topic:  topic,
		source: options.Source,
		format: options.Format,
		codec:  codec,
	}
	b.dispose = n.OnPatch(func(p jsonpatch.Patch, _ *tree.Node) {
		b.mutex.Lock()
		b.pending = append(b.pending, p)
		b.mutex.Unlock()
	})
	return b, nil
}

// Source returns the source identifier of the published batches.
func (b *Broadcaster) Source() string {
	return b.source
}

// Pending returns the number of collected patches not yet published.
func (b *Broadcaster) Pending() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.pending)
}

// Flush publishes the collected patches as one batch. On failure the patches stay
// pending for the next Flush.
func (b *Broadcaster) Flush(ctx context.Context) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	batch := &Batch{
		ID:       uuid.New().String(),
		Source:   b.source,
		Sequence: b.sequence + 1,
		Patches:  b.pending,
	}
	data, err := b.codec.Encode(batch)
	if err != nil {
		return errors.Wrap(err, "failed to encode batch")
	}
	if err := b.pub.Publish(ctx, b.topic, data, b.format); err != nil {
		return err
	}

	lvlog.Named("patchbus").Debug("published batch",
		zap.String("topic", b.topic),
		zap.String("source", b.source),
		zap.Uint64("seq", batch.Sequence),
		zap.Int("patches", len(batch.Patches)))
	b.sequence = batch.Sequence
	b.pending = nil
	return nil
}

// Close stops collecting patches. Pending patches are dropped.
func (b *Broadcaster) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.dispose != nil {
		b.dispose()
		b.dispose = nil
	}
	b.pending = nil
}

// Follower applies the batches received on a topic onto a replica tree. The replica
// must only be touched through Do while the follower runs.
type Follower struct {
	node         *tree.Node
	sub          Subscriber
	topic        string
	subscriberID string
	options      *ReplicaOptions

	mutex    sync.Mutex
	applied  map[string]bool
	sequence map[string]uint64
}

// Follow subscribes to topic and applies every received batch onto n.
func Follow(ctx context.Context, sub Subscriber, topic, subscriberID string, n *tree.Node, opts ...ReplicaOption) (*Follower, error) {
	options := DefaultReplicaOptions()
	for _, opt := range opts {
		opt(options)
	}
	f := &Follower{
		node:         n,
		sub:          sub,
		topic:        topic,
		subscriberID: subscriberID,
		options:      options,
		applied:      make(map[string]bool),
		sequence:     make(map[string]uint64),
	}
	if err := sub.Subscribe(ctx, topic, subscriberID, f.handle); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Follower) handle(_ context.Context, msg Message) error {
	codec, err := CodecFor(msg.Format)
	if err != nil {
		return err
	}
	batch, err := codec.Decode(msg.Payload)
	if err != nil {
		return err
	}
	if f.options.IgnoreSource != "" && batch.Source == f.options.IgnoreSource {
		return nil
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.applied[batch.ID] {
		return nil
	}
	if last := f.sequence[batch.Source]; batch.Sequence != last+1 {
		lvlog.Named("patchbus").Warn("batch sequence gap",
			zap.String("source", batch.Source),
			zap.Uint64("expected", last+1),
			zap.Uint64("received", batch.Sequence))
	}
	if err := tree.ApplyPatches(f.node, batch.Patches...); err != nil {
		return errors.Wrapf(err, "failed to apply batch %s from %s", batch.ID, batch.Source)
	}
	f.applied[batch.ID] = true
	f.sequence[batch.Source] = batch.Sequence

	if f.options.OnApplied != nil {
		f.options.OnApplied(batch)
	}
	return nil
}

// Do runs fn with exclusive access to the replica.
func (f *Follower) Do(fn func(n *tree.Node) error) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return fn(f.node)
}

// Applied returns the number of batches applied so far.
func (f *Follower) Applied() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.applied)
}

// Stop unsubscribes the follower.
func (f *Follower) Stop(ctx context.Context) error {
	return f.sub.Unsubscribe(ctx, f.topic, f.subscriberID)
}
