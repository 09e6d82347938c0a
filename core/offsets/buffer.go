package offsets

import (
	"context"
	"errors"
	"fmt"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
)

type groupTopic struct {
	group string
	topic string
}

// Buffer accumulates the updates observed between two flushes. It is owned by
// a single tailer goroutine.
type Buffer struct {
	offsets map[groupTopic][]int64
}

func NewBuffer() *Buffer {
	return &Buffer{offsets: make(map[groupTopic][]int64)}
}

// Apply folds a decoded update into the buffer. Tombstones only extend the
// vector to cover their partition and never clear a known slot.
func (b *Buffer) Apply(u Update) {
	switch u.Kind {
	case Commit:
		key := groupTopic{group: u.Group, topic: u.Topic}
		b.offsets[key] = insertAt(b.offsets[key], int(u.Partition), u.Offset)
	case Tombstone:
		key := groupTopic{group: u.Group, topic: u.Topic}
		b.offsets[key] = extendTo(b.offsets[key], int(u.Partition)+1)
	}
}

// Get returns the buffered vector of group on topic.
func (b *Buffer) Get(group, topic string) ([]int64, bool) {
	v, ok := b.offsets[groupTopic{group: group, topic: topic}]
	return v, ok
}

func (b *Buffer) Len() int {
	return len(b.offsets)
}

func (b *Buffer) Reset() {
	b.offsets = make(map[groupTopic][]int64)
}

// Flush merges every buffered vector into the offsets cache of cluster and
// clears the buffer. Entries failing to replicate are still applied locally.
// Vectors built from tombstones only are dropped unless the pair is cached.
func (b *Buffer) Flush(ctx context.Context, cache *store.OffsetsCache, cluster models.ClusterID) error {
	var errs []error
	for gt, local := range b.offsets {
		key := models.GroupTopicKey{Cluster: cluster, Group: gt.group, Topic: gt.topic}
		existing, cached := cache.Get(key)
		if !cached && allUnknown(local) {
			continue
		}
		if err := cache.Insert(ctx, key, Merge(local, existing)); err != nil {
			errs = append(errs, err)
		}
	}
	b.Reset()

	if len(errs) > 0 {
		return fmt.Errorf("failed to replicate %d offset entries: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Merge combines a buffered vector with the cached one. A complete local
// vector replaces the cached one; a vector with unknown slots is merged
// element-wise with max so partitions missing from the batch do not regress.
func Merge(local, existing []int64) []int64 {
	if existing == nil || !hasUnknown(local) {
		return append([]int64(nil), local...)
	}

	n := max(len(local), len(existing))
	merged := make([]int64, n)
	for i := range merged {
		merged[i] = max(at(local, i), at(existing, i))
	}
	return merged
}

// insertAt sets vec[index], growing vec with models.NoOffset as needed.
func insertAt(vec []int64, index int, value int64) []int64 {
	vec = extendTo(vec, index+1)
	vec[index] = value
	return vec
}

func extendTo(vec []int64, length int) []int64 {
	for len(vec) < length {
		vec = append(vec, models.NoOffset)
	}
	return vec
}

func at(vec []int64, index int) int64 {
	if index < len(vec) {
		return vec[index]
	}
	return models.NoOffset
}

func hasUnknown(vec []int64) bool {
	for _, v := range vec {
		if v == models.NoOffset {
			return true
		}
	}
	return false
}

func allUnknown(vec []int64) bool {
	for _, v := range vec {
		if v != models.NoOffset {
			return false
		}
	}
	return true
}
