package patchbus

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/totomo/luvtree/internal/lvlog"
)

// MemoryPubSub is an in-process PubSub. Every subscription owns a queue drained by
// one goroutine, so a subscriber sees the messages of a topic in publication order.
type MemoryPubSub struct {
	options       *Options
	subscriptions map[string][]*memorySubscription
	mutex         sync.RWMutex
	closed        bool
}

type memorySubscription struct {
	topic        string
	subscriberID string
	handler      Handler
	queue        chan Message
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

var _ PubSub = (*MemoryPubSub)(nil)

// NewMemoryPubSub creates a MemoryPubSub. Nil options use NewOptions.
func NewMemoryPubSub(options *Options) *MemoryPubSub {
	if options == nil {
		options = NewOptions()
	}
	if options.QueueSize <= 0 {
		options.QueueSize = NewOptions().QueueSize
	}
	return &MemoryPubSub{
		options:       options,
		subscriptions: make(map[string][]*memorySubscription),
	}
}

// Publish queues data for every current subscriber of topic. It blocks while a
// subscriber queue is full, until ctx is done.
func (ps *MemoryPubSub) Publish(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	if ps.closed {
		return ErrClosed
	}
	if format == "" {
		format = ps.options.DefaultFormat
	}
	msg := Message{
		Topic:    topic,
		Payload:  data,
		Format:   format,
		Metadata: map[string]string{"format": string(format)},
	}

	for _, sub := range ps.subscriptions[topic] {
		select {
		case sub.queue <- msg:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "failed to publish to %s", topic)
		}
	}
	return nil
}

// Subscribe registers handler for topic under subscriberID.
func (ps *MemoryPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler Handler) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return ErrClosed
	}
	for _, sub := range ps.subscriptions[topic] {
		if sub.subscriberID == subscriberID {
			return errors.Errorf("already subscribed to topic %s with subscriberID %s", topic, subscriberID)
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		topic:        topic,
		subscriberID: subscriberID,
		handler:      handler,
		queue:        make(chan Message, ps.options.QueueSize),
		ctx:          subCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	ps.subscriptions[topic] = append(ps.subscriptions[topic], sub)
	go sub.run()
	return nil
}

func (s *memorySubscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			if err := s.handler(s.ctx, msg); err != nil {
				lvlog.Named("patchbus").Warn("failed to handle message",
					zap.String("topic", s.topic),
					zap.String("subscriber", s.subscriberID),
					zap.Error(err))
			}
		}
	}
}

// Unsubscribe removes subscriberID from topic and waits for its handler to return.
func (ps *MemoryPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return ErrClosed
	}
	var found *memorySubscription
	subscribers := ps.subscriptions[topic]
	for i, sub := range subscribers {
		if sub.subscriberID != subscriberID {
			continue
		}
		found = sub
		rest := append(subscribers[:i:i], subscribers[i+1:]...)
		if len(rest) == 0 {
			delete(ps.subscriptions, topic)
		} else {
			ps.subscriptions[topic] = rest
		}
		break
	}
	ps.mutex.Unlock()

	if found == nil {
		return errors.Errorf("subscriber %s not found for topic %s", subscriberID, topic)
	}
	found.cancel()
	<-found.done
	return nil
}

// Close cancels every subscription and waits for running handlers. Closing twice is a no-op.
func (ps *MemoryPubSub) Close() error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return nil
	}
	ps.closed = true
	subscriptions := ps.subscriptions
	ps.subscriptions = make(map[string][]*memorySubscription)
	ps.mutex.Unlock()

	for _, subscribers := range subscriptions {
		for _, sub := range subscribers {
			sub.cancel()
		}
	}
	for _, subscribers := range subscriptions {
		for _, sub := range subscribers {
			<-sub.done
		}
	}
	return nil
}
