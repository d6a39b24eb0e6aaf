package redisdb

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

// MemKV is an in-memory KVStore used by tests and by components that
// need a storage double without a live Redis. TTLs are honoured lazily
// on read against an injectable clock.
type MemKV struct {
	mu      sync.RWMutex
	values  map[string]memEntry
	hashes  map[string]map[string]string
	now     func() time.Time
	failing bool
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero means persistent
}

// NewMemKV creates an empty in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{
		values: make(map[string]memEntry),
		hashes: make(map[string]map[string]string),
		now:    time.Now,
	}
}

// SetClock replaces the clock used for TTL checks.
func (m *MemKV) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetFailing makes every subsequent call return redis_unavailable.
func (m *MemKV) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *MemKV) err() error {
	if m.failing {
		return common.NewError(common.KindRedisUnavailable, "memkv forced failure")
	}
	return nil
}

func (m *MemKV) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}

func (m *MemKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return "", err
	}
	e, ok := m.values[key]
	if !ok || m.expired(e) {
		delete(m.values, key)
		return "", common.NewError(common.KindNotFound, "key not found")
	}
	return e.value, nil
}

func (m *MemKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	m.values[key] = memEntry{value: value}
	return nil
}

func (m *MemKV) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	m.values[key] = memEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemKV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return false, err
	}
	if e, ok := m.values[key]; ok && !m.expired(e) {
		return false, nil
	}
	m.values[key] = memEntry{value: value, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemKV) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err(); err != nil {
		return "", err
	}
	h, ok := m.hashes[key]
	if !ok {
		return "", common.NewError(common.KindNotFound, "key not found")
	}
	v, ok := h[field]
	if !ok {
		return "", common.NewError(common.KindNotFound, "field not found")
	}
	return v, nil
}

func (m *MemKV) HSet(_ context.Context, key string, pairs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range pairs {
		h[k] = v
	}
	return nil
}

func (m *MemKV) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err(); err != nil {
		return nil, err
	}
	h := m.hashes[key]
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (m *MemKV) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	if h, ok := m.hashes[key]; ok {
		for _, f := range fields {
			delete(h, f)
		}
	}
	return nil
}

func (m *MemKV) ReplaceHash(_ context.Context, key string, pairs map[string]string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	h := make(map[string]string, len(pairs))
	for k, v := range pairs {
		h[k] = v
	}
	m.hashes[key] = h
	return nil
}

func (m *MemKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	for _, key := range keys {
		delete(m.values, key)
		delete(m.hashes, key)
	}
	return nil
}

func (m *MemKV) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return nil, err
	}
	var keys []string
	for key, e := range m.values {
		if m.expired(e) {
			delete(m.values, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	for key := range m.hashes {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	if e, ok := m.values[key]; ok {
		e.expiresAt = m.now().Add(ttl)
		m.values[key] = e
	}
	return nil
}

func (m *MemKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return false, err
	}
	if e, ok := m.values[key]; ok && !m.expired(e) {
		return true, nil
	}
	_, ok := m.hashes[key]
	return ok, nil
}

func (m *MemKV) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err()
}

func (m *MemKV) Close() error { return nil }

// Compile-time check
var _ interfaces.KVStore = (*MemKV)(nil)
