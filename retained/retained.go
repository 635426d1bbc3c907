// Package retained stores the last PUBLISH sent with RETAIN=1 per topic,
// for replay to subscribers that join later (MQTT 3.1.1 §3.3.1.3).
//
// Not part of the sans-I/O core: the broker is the only consumer.
package retained

import (
	"context"
	"time"
)

// Message is the value type persisted by a Store: enough of a PUBLISH to
// rebuild and redeliver it to a newly matching subscriber.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	StoredAt time.Time
}

// Store persists retained messages keyed by topic. Implementations must be
// safe for concurrent use; the broker calls Save/Delete from any connection
// goroutine and Matching from any subscribe handler.
type Store interface {
	// Save stores or replaces the retained message for a topic. The
	// message is stored as given, even with an empty Payload; removing a
	// topic's retained message is Delete's job.
	Save(ctx context.Context, topic string, msg Message) error

	// Load retrieves the retained message for an exact topic.
	Load(ctx context.Context, topic string) (Message, error)

	// Delete removes the retained message for a topic, if any.
	Delete(ctx context.Context, topic string) error

	// Topics returns every topic currently holding a retained message.
	Topics(ctx context.Context) ([]string, error)

	Close() error
}

// Matcher is satisfied by topic.Matcher; declared here to avoid an import
// cycle between retained and topic.
type Matcher interface {
	Match(filter, topic string) bool
}

// NewMemoryStore returns a process-local retained Store. Default choice
// when no persistence across restarts is needed.
func NewMemoryStore() Store {
	return NewMemoryStoreT()
}

// NewPebbleStore opens (or creates) an embedded LSM-tree database on disk
// and returns a retained Store backed by it.
func NewPebbleStore(config PebbleStoreConfig) (Store, error) {
	if config.Prefix == "" {
		config.Prefix = "retained:"
	}
	return NewPebbleStoreT(config)
}

// NewRedisStore returns a retained Store backed by a Redis server, shared
// across broker processes.
func NewRedisStore(config RedisStoreConfig) (Store, error) {
	if config.Prefix == "" {
		config.Prefix = "retained:"
	}
	return NewRedisStoreT(config)
}

// Matching returns every retained message whose topic matches filter,
// replayed to a client that has just subscribed to it.
func Matching(ctx context.Context, store Store, filter string, matcher Matcher) ([]Message, error) {
	topics, err := store.Topics(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Message
	for _, topic := range topics {
		if !matcher.Match(filter, topic) {
			continue
		}
		msg, err := store.Load(ctx, topic)
		if err != nil {
			continue
		}
		matches = append(matches, msg)
	}

	return matches, nil
}
