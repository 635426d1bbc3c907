package retained

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store: a plain map guarded by a
// RWMutex. Nothing survives a restart; it's the default when a broker
// has no durability requirement.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]Message
	closed bool
}

// NewMemoryStoreT constructs a MemoryStore directly; retained.NewMemoryStore
// is the usual entry point and returns this wrapped as a Store.
func NewMemoryStoreT() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Message),
	}
}

// Save stores or replaces the retained message for topic.
func (m *MemoryStore) Save(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.data[topic] = msg
	return nil
}

// Load retrieves the retained message for an exact topic.
func (m *MemoryStore) Load(ctx context.Context, topic string) (Message, error) {
	var zero Message
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return zero, ErrStoreClosed
	}

	msg, ok := m.data[topic]
	if !ok {
		return zero, ErrNotFound
	}

	return msg, nil
}

// Delete removes the retained message for topic, if any.
func (m *MemoryStore) Delete(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, topic)
	return nil
}

// Exists reports whether topic currently holds a retained message.
func (m *MemoryStore) Exists(ctx context.Context, topic string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrStoreClosed
	}

	_, ok := m.data[topic]
	return ok, nil
}

// Topics returns every topic currently holding a retained message.
func (m *MemoryStore) Topics(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	topics := make([]string, 0, len(m.data))
	for topic := range m.data {
		topics = append(topics, topic)
	}

	return topics, nil
}

// Count returns the number of topics currently holding a retained message.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	return int64(len(m.data)), nil
}

// Close releases the store's backing map. Further calls return
// ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.closed = true
	m.data = nil
	return nil
}
