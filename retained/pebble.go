package retained

import (
	"context"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// PebbleStore persists retained messages in an embedded Pebble LSM-tree
// database, CBOR-encoded, so the broker survives a restart without an
// external dependency.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
	prefix []byte
}

// PebbleStoreConfig configures a PebbleStore.
type PebbleStoreConfig struct {
	Path   string
	Prefix string // key prefix; useful when sharing a DB with other data
	Opts   *pebble.Options
}

// NewPebbleStoreT opens (or creates) the database at config.Path and
// returns a PebbleStore; retained.NewPebbleStore wraps this as a Store.
func NewPebbleStoreT(config PebbleStoreConfig) (*PebbleStore, error) {
	opts := config.Opts
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, err
	}

	prefix := []byte(config.Prefix)
	if len(prefix) == 0 {
		prefix = []byte("retained:")
	}

	return &PebbleStore{
		db:     db,
		prefix: prefix,
	}, nil
}

func (p *PebbleStore) makeKey(topic string) []byte {
	key := make([]byte, len(p.prefix)+len(topic))
	copy(key, p.prefix)
	copy(key[len(p.prefix):], topic)
	return key
}

// Save stores or replaces the retained message for topic.
func (p *PebbleStore) Save(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	data, err := cbor.Marshal(msg)
	if err != nil {
		return err
	}

	return p.db.Set(p.makeKey(topic), data, pebble.Sync)
}

// Load retrieves the retained message for an exact topic.
func (p *PebbleStore) Load(ctx context.Context, topic string) (Message, error) {
	var zero Message
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return zero, ErrStoreClosed
	}
	p.mu.RUnlock()

	data, closer, err := p.db.Get(p.makeKey(topic))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	defer closer.Close()

	var msg Message
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return zero, err
	}

	return msg, nil
}

// Delete removes the retained message for topic, if any.
func (p *PebbleStore) Delete(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	return p.db.Delete(p.makeKey(topic), pebble.Sync)
}

// Exists reports whether topic currently holds a retained message.
func (p *PebbleStore) Exists(ctx context.Context, topic string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false, ErrStoreClosed
	}
	p.mu.RUnlock()

	_, closer, err := p.db.Get(p.makeKey(topic))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

// Topics returns every topic currently holding a retained message.
func (p *PebbleStore) Topics(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	p.mu.RUnlock()

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: p.prefix,
		UpperBound: append(append([]byte(nil), p.prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var topics []string
	for iter.First(); iter.Valid(); iter.Next() {
		topics = append(topics, string(iter.Key()[len(p.prefix):]))
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return topics, nil
}

// Count returns the number of topics currently holding a retained message.
func (p *PebbleStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	p.mu.RUnlock()

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: p.prefix,
		UpperBound: append(append([]byte(nil), p.prefix...), 0xff),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var count int64
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}

	if err := iter.Error(); err != nil {
		return 0, err
	}

	return count, nil
}

// Close closes the underlying Pebble database.
func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStoreClosed
	}

	p.closed = true
	return p.db.Close()
}
