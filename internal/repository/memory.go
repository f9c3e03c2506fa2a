package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKeyValueStore keeps values for the lifetime of the process.
// A zero ttl means entries never expire.
type MemoryKeyValueStore struct {
	values sync.Map
	ttl    time.Duration
}

func NewMemoryKeyValueStore(ttl time.Duration) *MemoryKeyValueStore {
	return &MemoryKeyValueStore{
		ttl: ttl,
	}
}

func memoryKey(origin, key string) string {
	return origin + "\x00" + key
}

func (r *MemoryKeyValueStore) Get(ctx context.Context, origin, key string) (string, bool, error) {
	val, ok := r.values.Load(memoryKey(origin, key))
	if !ok {
		return "", false, nil
	}
	entry := val.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		r.values.CompareAndDelete(memoryKey(origin, key), val)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (r *MemoryKeyValueStore) Set(ctx context.Context, origin, key, value string) error {
	entry := &memoryEntry{value: value}
	if r.ttl > 0 {
		entry.expiresAt = time.Now().Add(r.ttl)
	}
	r.values.Store(memoryKey(origin, key), entry)
	return nil
}

func (r *MemoryKeyValueStore) Delete(ctx context.Context, origin, key string) error {
	r.values.Delete(memoryKey(origin, key))
	return nil
}
