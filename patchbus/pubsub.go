// Package patchbus carries patches emitted by a tree to replicas over a publish/subscribe
// transport. A Broadcaster collects the patches of one tree and publishes them in batches;
// a Follower applies received batches onto a replica.
package patchbus

import (
	"context"

	"github.com/pkg/errors"
)

// EncodingFormat is the format of a message payload.
type EncodingFormat string

const (
	// EncodingFormatJSON encodes batches as JSON documents.
	EncodingFormatJSON EncodingFormat = "json"
	// EncodingFormatBase64 encodes batches as base64 wrapped JSON.
	EncodingFormatBase64 EncodingFormat = "base64"
)

// ErrClosed is returned by operations on a closed PubSub.
var ErrClosed = errors.New("pubsub is closed")

// Message is one published payload.
type Message struct {
	// Topic is the topic the message was published to.
	Topic string `json:"topic"`
	// Payload is the encoded batch.
	Payload []byte `json:"payload"`
	// Format is the encoding of Payload.
	Format EncodingFormat `json:"format"`
	// Metadata is optional metadata associated with the message.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Handler handles one received message. Errors are logged by the transport.
type Handler func(ctx context.Context, msg Message) error

// Publisher publishes messages.
type Publisher interface {
	// Publish publishes data to topic. An empty format uses the default format.
	Publish(ctx context.Context, topic string, data []byte, format EncodingFormat) error
	// Close closes the publisher.
	Close() error
}

// Subscriber delivers published messages to handlers. Messages published to one topic
// reach each subscriber in publication order.
type Subscriber interface {
	// Subscribe calls handler for every message published to topic until Unsubscribe.
	Subscribe(ctx context.Context, topic string, subscriberID string, handler Handler) error
	// Unsubscribe stops the delivery to subscriberID.
	Unsubscribe(ctx context.Context, topic string, subscriberID string) error
	// Close closes the subscriber.
	Close() error
}

// PubSub combines Publisher and Subscriber.
type PubSub interface {
	Publisher
	Subscriber
}

// Options configures a PubSub implementation.
type Options struct {
	// DefaultFormat is used when Publish is called without a format.
	DefaultFormat EncodingFormat
	// QueueSize bounds the messages waiting for one in-memory subscriber.
	QueueSize int
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	return &Options{
		DefaultFormat: EncodingFormatJSON,
		QueueSize:     256,
	}
}
