package patchbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/totomo/luvtree/internal/lvlog"
)

// RedisPubSub implements PubSub on Redis channels. Each subscription holds its own
// Redis subscription and delivers messages from one goroutine.
type RedisPubSub struct {
	client        *redis.Client
	options       *Options
	subscriptions map[string]*redisSubscription
	mutex         sync.Mutex
	closed        bool
}

type redisSubscription struct {
	topic        string
	subscriberID string
	handler      Handler
	pubsub       *redis.PubSub
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

var _ PubSub = (*RedisPubSub)(nil)

// NewRedisPubSub creates a RedisPubSub on client after checking the connection.
func NewRedisPubSub(client *redis.Client, options *Options) (*RedisPubSub, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if options == nil {
		options = NewOptions()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisPubSub{
		client:        client,
		options:       options,
		subscriptions: make(map[string]*redisSubscription),
	}, nil
}

func subscriptionKey(topic, subscriberID string) string {
	return topic + "\x00" + subscriberID
}

// Publish publishes data to the Redis channel topic.
func (ps *RedisPubSub) Publish(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	ps.mutex.Lock()
	closed := ps.closed
	ps.mutex.Unlock()
	if closed {
		return ErrClosed
	}
	if format == "" {
		format = ps.options.DefaultFormat
	}

	msgData, err := json.Marshal(Message{
		Topic:    topic,
		Payload:  data,
		Format:   format,
		Metadata: map[string]string{"format": string(format)},
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	if err := ps.client.Publish(ctx, topic, msgData).Err(); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", topic)
	}
	return nil
}

// Subscribe subscribes subscriberID to the Redis channel topic.
func (ps *RedisPubSub) Subscribe(ctx context.Context, topic string, subscriberID string, handler Handler) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return ErrClosed
	}
	key := subscriptionKey(topic, subscriberID)
	if _, ok := ps.subscriptions[key]; ok {
		return errors.Errorf("already subscribed to topic %s with subscriberID %s", topic, subscriberID)
	}

	pubsub := ps.client.Subscribe(ctx, topic)
	// Wait for the confirmation so that no message published after Subscribe returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return errors.Wrapf(err, "failed to subscribe to topic %s", topic)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		topic:        topic,
		subscriberID: subscriberID,
		handler:      handler,
		pubsub:       pubsub,
		ctx:          subCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	ps.subscriptions[key] = sub
	go sub.run()
	return nil
}

func (s *redisSubscription) run() {
	defer close(s.done)
	logger := lvlog.Named("patchbus")

	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("failed to decode message", zap.String("topic", s.topic), zap.Error(err))
				continue
			}
			if err := s.handler(s.ctx, msg); err != nil {
				logger.Warn("failed to handle message",
					zap.String("topic", s.topic),
					zap.String("subscriber", s.subscriberID),
					zap.Error(err))
			}
		}
	}
}

func (s *redisSubscription) stop() error {
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	return err
}

// Unsubscribe stops the delivery to subscriberID.
func (ps *RedisPubSub) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return ErrClosed
	}
	key := subscriptionKey(topic, subscriberID)
	sub, ok := ps.subscriptions[key]
	delete(ps.subscriptions, key)
	ps.mutex.Unlock()

	if !ok {
		return errors.Errorf("subscriber %s not found for topic %s", subscriberID, topic)
	}
	if err := sub.stop(); err != nil {
		return errors.Wrapf(err, "failed to unsubscribe from topic %s", topic)
	}
	return nil
}

// Close stops every subscription and closes the Redis client.
func (ps *RedisPubSub) Close() error {
	ps.mutex.Lock()
	if ps.closed {
		ps.mutex.Unlock()
		return nil
	}
	ps.closed = true
	subscriptions := ps.subscriptions
	ps.subscriptions = make(map[string]*redisSubscription)
	ps.mutex.Unlock()

	for _, sub := range subscriptions {
		if err := sub.stop(); err != nil {
			lvlog.Named("patchbus").Warn("failed to close subscription", zap.String("topic", sub.topic), zap.Error(err))
		}
	}
	if err := ps.client.Close(); err != nil {
		return errors.Wrap(err, "failed to close Redis client")
	}
	return nil
}
