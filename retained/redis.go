package retained

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists retained messages in Redis, JSON-encoded, shared
// across broker processes behind a load balancer.
type RedisStore struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
	ttl    time.Duration
	prefix string
	index  string // set key tracking every topic currently stored
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix; useful when sharing a DB with other data
	TTL      time.Duration // 0 disables expiry
	Options  *redis.Options
}

// NewRedisStoreT dials addr and returns a RedisStore; retained.NewRedisStore
// wraps this as a Store.
func NewRedisStoreT(config RedisStoreConfig) (*RedisStore, error) {
	var client *redis.Client
	if config.Options != nil {
		client = redis.NewClient(config.Options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("retained: connect to redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "retained:"
	}

	return &RedisStore{
		client: client,
		ttl:    config.TTL,
		prefix: prefix,
		index:  prefix + "index",
	}, nil
}

func (r *RedisStore) makeKey(topic string) string {
	return r.prefix + topic
}

// Save stores or replaces the retained message for topic.
func (r *RedisStore) Save(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrStoreClosed
	}
	r.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("retained: marshal message: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.makeKey(topic), data, r.ttl)
	pipe.SAdd(ctx, r.index, topic)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retained: save message: %w", err)
	}

	return nil
}

// Load retrieves the retained message for an exact topic.
func (r *RedisStore) Load(ctx context.Context, topic string) (Message, error) {
	var zero Message
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return zero, ErrStoreClosed
	}
	r.mu.RUnlock()

	data, err := r.client.Get(ctx, r.makeKey(topic)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("retained: load message: %w", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return zero, fmt.Errorf("retained: unmarshal message: %w", err)
	}

	return msg, nil
}

// Delete removes the retained message for topic, if any.
func (r *RedisStore) Delete(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrStoreClosed
	}
	r.mu.RUnlock()

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.makeKey(topic))
	pipe.SRem(ctx, r.index, topic)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retained: delete message: %w", err)
	}

	return nil
}

// Exists reports whether topic currently holds a retained message.
func (r *RedisStore) Exists(ctx context.Context, topic string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false, ErrStoreClosed
	}
	r.mu.RUnlock()

	count, err := r.client.Exists(ctx, r.makeKey(topic)).Result()
	if err != nil {
		return false, fmt.Errorf("retained: check existence: %w", err)
	}

	return count > 0, nil
}

// Topics returns every topic currently holding a retained message.
func (r *RedisStore) Topics(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	r.mu.RUnlock()

	topics, err := r.client.SMembers(ctx, r.index).Result()
	if err != nil {
		return nil, fmt.Errorf("retained: list topics: %w", err)
	}

	return topics, nil
}

// Count returns the number of topics currently holding a retained message.
func (r *RedisStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	r.mu.RUnlock()

	count, err := r.client.SCard(ctx, r.index).Result()
	if err != nil {
		return 0, fmt.Errorf("retained: count topics: %w", err)
	}

	return count, nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}

	r.closed = true
	return r.client.Close()
}
