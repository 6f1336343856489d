package faststore

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// LocalStore is an in-process Store used in tests and as a degraded-mode
// fallback when Redis is unreachable. Expiry is checked lazily on access.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]localEntry
	maxSize int
}

type localEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// NewLocalStore creates a bounded in-process store.
func NewLocalStore(maxSize int) *LocalStore {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &LocalStore{
		entries: make(map[string]localEntry),
		maxSize: maxSize,
	}
}

func (s *LocalStore) getLocked(key string) (localEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return localEntry{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return localEntry{}, false
	}
	return entry, true
}

// evictLocked drops expired entries, then arbitrary ones until under bound.
func (s *LocalStore) evictLocked() {
	if len(s.entries) < s.maxSize {
		return
	}
	now := time.Now()
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	for key := range s.entries {
		if len(s.entries) < s.maxSize {
			break
		}
		delete(s.entries, key)
	}
}

// Get returns the value for key, or ErrNotFound.
func (s *LocalStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.getLocked(key)
	if !ok {
		return "", ErrNotFound
	}
	return entry.value, nil
}

// Set stores value under key with the given TTL.
func (s *LocalStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	entry := localEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Delete removes key.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// IncrWithCeiling atomically increments the counter unless it would exceed
// the ceiling.
func (s *LocalStore) IncrWithCeiling(ctx context.Context, key string, delta, ceiling int64, ttl time.Duration) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	entry, ok := s.getLocked(key)
	if ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err == nil {
			current = parsed
		}
	}

	if current+delta > ceiling {
		return current, false, nil
	}
	current += delta

	next := localEntry{value: strconv.FormatInt(current, 10)}
	if ok {
		next.expiresAt = entry.expiresAt
	} else if ttl > 0 {
		next.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = next
	return current, true, nil
}

// GetCounter returns the current counter value, zero when missing.
func (s *LocalStore) GetCounter(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.getLocked(key)
	if !ok {
		return 0, nil
	}
	val, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return val, nil
}

// Expire resets the TTL on key.
func (s *LocalStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.getLocked(key)
	if !ok {
		return nil
	}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	} else {
		entry.expiresAt = time.Time{}
	}
	s.entries[key] = entry
	return nil
}

// Ping always succeeds for the local store.
func (s *LocalStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}
