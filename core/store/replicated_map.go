package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/telemetry"
)

// Entry is a cached value together with the instant it was last written.
type Entry[V any] struct {
	Value   V
	Updated time.Time

	// replicated is set once the value reached the log.
	replicated bool
}

// KV is a key with its entry, as returned by Filter.
type KV[K comparable, V any] struct {
	Key     K
	Value   V
	Updated time.Time
}

// ReplicatedMap is an in-memory map whose mutations are written through to a
// ReplicationLog. Every component holds the same *ReplicatedMap, so all of
// them observe one underlying state.
type ReplicatedMap[K comparable, V any] struct {
	name string
	log  ReplicationLog

	// appendMu orders log appends for this map the same way mu orders the
	// local writes, without holding mu across network I/O.
	appendMu sync.Mutex

	mu      sync.RWMutex
	entries map[K]Entry[V]

	now func() time.Time
}

// NewReplicatedMap creates an empty map publishing to log under name.
func NewReplicatedMap[K comparable, V any](name string, log ReplicationLog) *ReplicatedMap[K, V] {
	if log == nil {
		panic(fmt.Sprintf("replicated map %s created without a replication log", name))
	}
	return &ReplicatedMap[K, V]{
		name:    name,
		log:     log,
		entries: make(map[K]Entry[V]),
		now:     time.Now,
	}
}

func (m *ReplicatedMap[K, V]) Name() string {
	return m.name
}

// Insert stores value under key and appends it to the log. The local map is
// updated first; an append failure is returned but the local write stays.
// A value equal to the cached one only refreshes the entry timestamp, unless
// its last append failed.
func (m *ReplicatedMap[K, V]) Insert(ctx context.Context, key K, value V) error {
	wrappedKey, err := wrapKey(m.name, key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s value for %v: %w", m.name, key, err)
	}

	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	m.mu.Lock()
	previous, exists := m.entries[key]
	pending := !exists || !previous.replicated || !reflect.DeepEqual(previous.Value, value)
	m.entries[key] = Entry[V]{Value: value, Updated: m.now(), replicated: !pending}
	m.mu.Unlock()

	if !pending {
		return nil
	}

	if err := m.log.Append(ctx, wrappedKey, payload); err != nil {
		telemetry.ReplicationAppends.WithLabelValues(m.name, "error").Inc()
		return fmt.Errorf("failed to replicate %s entry %v: %w", m.name, key, err)
	}
	telemetry.ReplicationAppends.WithLabelValues(m.name, "ok").Inc()

	m.mu.Lock()
	if e, ok := m.entries[key]; ok && reflect.DeepEqual(e.Value, value) {
		e.replicated = true
		m.entries[key] = e
	}
	m.mu.Unlock()
	return nil
}

// Remove deletes key locally and appends a tombstone so other instances drop it on replay.
func (m *ReplicatedMap[K, V]) Remove(ctx context.Context, key K) error {
	wrappedKey, err := wrapKey(m.name, key)
	if err != nil {
		return err
	}

	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	if err := m.log.Append(ctx, wrappedKey, nil); err != nil {
		telemetry.ReplicationAppends.WithLabelValues(m.name, "error").Inc()
		return fmt.Errorf("failed to replicate %s tombstone %v: %w", m.name, key, err)
	}
	telemetry.ReplicationAppends.WithLabelValues(m.name, "ok").Inc()
	return nil
}

func (m *ReplicatedMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	return entry.Value, ok
}

func (m *ReplicatedMap[K, V]) Entry(key K) (Entry[V], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	return entry, ok
}

// Filter returns the entries matching pred. A nil pred matches everything.
func (m *ReplicatedMap[K, V]) Filter(pred func(K, V) bool) []KV[K, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []KV[K, V]
	for k, e := range m.entries {
		if pred == nil || pred(k, e.Value) {
			out = append(out, KV[K, V]{Key: k, Value: e.Value, Updated: e.Updated})
		}
	}
	return out
}

// Count returns how many entries match pred without copying them.
func (m *ReplicatedMap[K, V]) Count(pred func(K, V) bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for k, e := range m.entries {
		if pred == nil || pred(k, e.Value) {
			n++
		}
	}
	return n
}

func (m *ReplicatedMap[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

func (m *ReplicatedMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RemoveExpired drops entries not written for longer than maxAge. Nothing is
// appended to the log: a restarted process sees them again until the next sweep.
func (m *ReplicatedMap[K, V]) RemoveExpired(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if e.Updated.Before(cutoff) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// apply loads a replayed record without writing back to the log.
func (m *ReplicatedMap[K, V]) apply(rawKey, value []byte, at time.Time) error {
	var key K
	if err := json.Unmarshal(rawKey, &key); err != nil {
		return fmt.Errorf("%w: %s key: %v", models.ErrMalformedKey, m.name, err)
	}

	if value == nil {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil
	}

	var decoded V
	if err := json.Unmarshal(value, &decoded); err != nil {
		return fmt.Errorf("failed to decode %s value for %v: %w", m.name, key, err)
	}
	if at.IsZero() {
		at = m.now()
	}

	m.mu.Lock()
	m.entries[key] = Entry[V]{Value: decoded, Updated: at, replicated: true}
	m.mu.Unlock()
	return nil
}

// wrapKey builds the log key: a JSON array of the cache name and the JSON encoded key.
func wrapKey[K any](name string, key K) ([]byte, error) {
	encodedKey, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s key %v: %w", name, key, err)
	}
	return json.Marshal([2]string{name, string(encodedKey)})
}

func unwrapKey(raw []byte) (string, []byte, error) {
	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrMalformedKey, err)
	}
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("%w: expected 2 components, got %d", models.ErrMalformedKey, len(parts))
	}
	return parts[0], []byte(parts[1]), nil
}
