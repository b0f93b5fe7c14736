package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is a TTL key/value store whose entries can be dropped by tag.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

type redisCacheImpl struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(addr string, prefix string) (Cache, *redis.Client) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &redisCacheImpl{client: client, prefix: prefix}, client
}

func (r *redisCacheImpl) key(k string) string {
	return r.prefix + ":entry:" + k
}

func (r *redisCacheImpl) tagKey(tag string) string {
	return r.prefix + ":tag:" + tag
}

func (r *redisCacheImpl) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return data, nil
}

func (r *redisCacheImpl) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), value, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, r.tagKey(tag), r.key(key))
			if ttl > 0 {
				// tag sets outlive their members so late invalidations still find them
				pipe.Expire(ctx, r.tagKey(tag), 2*ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *redisCacheImpl) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		members, err := r.client.SMembers(ctx, r.tagKey(tag)).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("cache tag members: %w", err)
		}
		keys := append(members, r.tagKey(tag))
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache invalidate %s: %w", tag, err)
		}
	}
	return nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	tags      []string
}

type memoryCacheImpl struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	tags    map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemoryCache keeps entries in process. Used locally and in tests.
func NewMemoryCache() Cache {
	return &memoryCacheImpl{
		entries: map[string]memoryEntry{},
		tags:    map[string]map[string]struct{}{},
		now:     time.Now,
	}
}

func (m *memoryCacheImpl) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.removeLocked(key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (m *memoryCacheImpl) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	entry := memoryEntry{value: append([]byte(nil), value...), tags: tags}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	for _, tag := range tags {
		if m.tags[tag] == nil {
			m.tags[tag] = map[string]struct{}{}
		}
		m.tags[tag][key] = struct{}{}
	}
	return nil
}

func (m *memoryCacheImpl) InvalidateTags(_ context.Context, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range tags {
		for key := range m.tags[tag] {
			m.removeLocked(key)
		}
		delete(m.tags, tag)
	}
	return nil
}

func (m *memoryCacheImpl) removeLocked(key string) {
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	for _, tag := range entry.tags {
		delete(m.tags[tag], key)
	}
}
