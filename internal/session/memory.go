package session

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memorySession struct {
	mu     sync.Mutex
	values map[string][]byte
}

// MemoryBackend keeps sessions in process memory. Sessions expire after the
// idle TTL and are swept by go-cache's janitor.
type MemoryBackend struct {
	cache *gocache.Cache
	ttl   time.Duration
	mu    sync.Mutex
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	ttl = normalizeTTL(ttl)
	return &MemoryBackend{
		cache: gocache.New(ttl, ttl/2),
		ttl:   ttl,
	}
}

func (b *MemoryBackend) Get(_ context.Context, sessionID, name string) ([]byte, bool, error) {
	raw, ok := b.cache.Get(sessionID)
	if !ok {
		return nil, false, nil
	}
	sess := raw.(*memorySession)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	v, ok := sess.values[name]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, sessionID, name string, value []byte) error {
	b.mu.Lock()
	var sess *memorySession
	if raw, ok := b.cache.Get(sessionID); ok {
		sess = raw.(*memorySession)
	} else {
		sess = &memorySession{values: make(map[string][]byte)}
	}
	// re-set to push the expiry forward
	b.cache.Set(sessionID, sess, b.ttl)
	b.mu.Unlock()

	sess.mu.Lock()
	sess.values[name] = cloneBytes(value)
	sess.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, sessionID, name string) error {
	raw, ok := b.cache.Get(sessionID)
	if !ok {
		return nil
	}
	sess := raw.(*memorySession)
	sess.mu.Lock()
	delete(sess.values, name)
	sess.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Destroy(_ context.Context, sessionID string) error {
	b.cache.Delete(sessionID)
	return nil
}

// Len reports the number of live sessions.
func (b *MemoryBackend) Len() int {
	return b.cache.ItemCount()
}

func (b *MemoryBackend) Close() error {
	b.cache.Flush()
	return nil
}
