package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements an in-memory cache with TTL support.
type MemoryStore struct {
	data   sync.Map
	config Config
	cancel context.CancelFunc
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryStore creates an in-memory store with default configuration.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(DefaultConfig())
}

// NewMemoryStoreWithConfig creates an in-memory store. A background goroutine
// evicts expired items once a minute until Close is called.
func NewMemoryStoreWithConfig(config Config) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryStore{
		config: config,
		cancel: cancel,
	}
	go m.cleanupExpired(ctx)
	return m
}

// Get retrieves a value, lazily evicting it when expired.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullKey := m.config.Prefix + key
	value, ok := m.data.Load(fullKey)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}

	item := value.(cacheItem)
	if !item.expiration.IsZero() && time.Now().After(item.expiration) {
		m.data.Delete(fullKey)
		return nil, ErrCacheMiss{Key: key}
	}
	return item.value, nil
}

// Set stores a value with a TTL.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	item := cacheItem{value: value}
	if ttl > 0 {
		item.expiration = time.Now().Add(ttl)
	}

	m.data.Store(m.config.Prefix+key, item)
	return nil
}

// Delete removes a single key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.data.Delete(m.config.Prefix + key)
	return nil
}

// DeletePattern removes every key matching the glob pattern.
func (m *MemoryStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	deleted := 0
	m.data.Range(func(key, _ interface{}) bool {
		stored := strings.TrimPrefix(key.(string), m.config.Prefix)
		if MatchPattern(pattern, stored) {
			m.data.Delete(key)
			deleted++
		}
		return true
	})
	return deleted, nil
}

// Clear removes all keys.
func (m *MemoryStore) Clear(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.data.Range(func(key, _ interface{}) bool {
		m.data.Delete(key)
		return true
	})
	return nil
}

// Close stops the background cleanup goroutine.
func (m *MemoryStore) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *MemoryStore) cleanupExpired(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m.data.Range(func(key, value interface{}) bool {
				item := value.(cacheItem)
				if !item.expiration.IsZero() && now.After(item.expiration) {
					m.data.Delete(key)
				}
				return true
			})
		}
	}
}
