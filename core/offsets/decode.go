package offsets

import (
	"encoding/binary"
	"fmt"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Kind tells what an offset log record carries.
type Kind int

const (
	// Commit sets the committed offset of a group on a partition.
	Commit Kind = iota
	// Tombstone deletes the committed offset of a group on a partition.
	Tombstone
	// GroupMetadata is a group membership record without offset payload.
	GroupMetadata
)

func (k Kind) String() string {
	switch k {
	case Commit:
		return "commit"
	case Tombstone:
		return "tombstone"
	case GroupMetadata:
		return "group_metadata"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Update is one decoded record of the internal offsets topic.
type Update struct {
	Kind      Kind
	Group     string
	Topic     string
	Partition int32
	Offset    int64
}

// MaxPartition bounds the partition ids accepted from the offsets topic, the
// buffered vectors are indexed by partition.
const MaxPartition = 1 << 16

// Decode parses a key and value of the internal offsets topic.
//
// Key versions 0 and 1 carry group, topic and partition; version 2 carries the
// group only. The value of a commit starts with an int16 schema version
// followed by the int64 offset; an empty value is a tombstone.
func Decode(key, value []byte) (Update, error) {
	if len(key) < 2 {
		return Update{}, fmt.Errorf("key of %d bytes: %w", len(key), models.ErrShortBuffer)
	}

	version := int16(binary.BigEndian.Uint16(key))
	switch version {
	case 0, 1:
		var k kmsg.OffsetCommitKey
		if err := k.ReadFrom(key); err != nil {
			return Update{}, fmt.Errorf("failed to parse offset commit key: %w", err)
		}
		if k.Partition < 0 || k.Partition > MaxPartition {
			return Update{}, fmt.Errorf("group %s topic %s partition %d: %w", k.Group, k.Topic, k.Partition, models.ErrInvalidPartition)
		}
		u := Update{Group: k.Group, Topic: k.Topic, Partition: k.Partition}
		if len(value) == 0 {
			u.Kind = Tombstone
			return u, nil
		}
		offset, err := decodeCommitValue(value)
		if err != nil {
			return Update{}, fmt.Errorf("group %s topic %s partition %d: %w", k.Group, k.Topic, k.Partition, err)
		}
		u.Kind = Commit
		u.Offset = offset
		return u, nil

	case 2:
		var k kmsg.GroupMetadataKey
		if err := k.ReadFrom(key); err != nil {
			return Update{}, fmt.Errorf("failed to parse group metadata key: %w", err)
		}
		return Update{Kind: GroupMetadata, Group: k.Group}, nil
	}

	return Update{}, fmt.Errorf("%w: %d", models.ErrUnknownKeyVersion, version)
}

func decodeCommitValue(value []byte) (int64, error) {
	if len(value) < 10 {
		return 0, fmt.Errorf("value of %d bytes: %w", len(value), models.ErrShortBuffer)
	}
	// bytes 0-1 hold the value schema version, every version starts with the offset
	return int64(binary.BigEndian.Uint64(value[2:10])), nil
}
