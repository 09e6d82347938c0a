package store

import (
	"context"
	"sync"
	"time"
)

// Record is one entry read back from the replication log. A nil Value is a tombstone.
type Record struct {
	Key   []byte
	Value []byte
	Time  time.Time
}

// ReplicationLog is the durable, ordered log every replicated map writes through to.
type ReplicationLog interface {
	Append(ctx context.Context, key, value []byte) error

	// ReplayAll returns every retained record from the earliest entry to the
	// end of the log as observed when the call starts, in log order.
	ReplayAll(ctx context.Context) ([]Record, error)

	Close() error
}

// MockReplicationLog implements ReplicationLog in memory for testing
type MockReplicationLog struct {
	mu sync.Mutex

	Records     []Record
	AppendError error // error to return on append
	ReplayError error // error to return on replay
	AppendCalls int
	ReplayCalls int
}

// NewMockReplicationLog creates an empty in-memory log
func NewMockReplicationLog() *MockReplicationLog {
	return &MockReplicationLog{}
}

func (m *MockReplicationLog) Append(ctx context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls++
	if m.AppendError != nil {
		return m.AppendError
	}

	m.Records = append(m.Records, Record{
		Key:   append([]byte(nil), key...),
		Value: cloneValue(value),
		Time:  time.Now(),
	})
	return nil
}

func (m *MockReplicationLog) ReplayAll(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReplayCalls++
	if m.ReplayError != nil {
		return nil, m.ReplayError
	}

	out := make([]Record, len(m.Records))
	copy(out, m.Records)
	return out, nil
}

// Close is a no-op for mock
func (m *MockReplicationLog) Close() error {
	return nil
}

// Len returns the number of appended records.
func (m *MockReplicationLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records)
}

// SetAppendError changes the append failure while other goroutines may be writing.
func (m *MockReplicationLog) SetAppendError(err error) {
	m.mu.Lock()
	m.AppendError = err
	m.mu.Unlock()
}

// keeps the nil vs empty distinction, nil is a tombstone
func cloneValue(value []byte) []byte {
	if value == nil {
		return nil
	}
	return append([]byte{}, value...)
}
