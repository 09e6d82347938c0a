package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaReplicationLog is a ReplicationLog backed by a compacted Kafka topic.
type KafkaReplicationLog struct {
	brokers []string
	topic   string
	timeout time.Duration

	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaReplicationLog connects to the caching cluster and creates the
// compacted topic if it does not exist yet.
func NewKafkaReplicationLog(brokers []string, caching config.CachingConfig, logger *zap.Logger) (*KafkaReplicationLog, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers provided")
	}

	l := &KafkaReplicationLog{
		brokers: brokers,
		topic:   caching.Topic,
		timeout: 10 * time.Second,
		logger:  logger.Named("replication_log").With(zap.String("topic", caching.Topic)),
	}

	l.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        caching.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: l.timeout,
	}

	if err := l.ensureTopic(caching); err != nil {
		return nil, fmt.Errorf("failed to initialize cache topic: %w", err)
	}

	return l, nil
}

func (l *KafkaReplicationLog) ensureTopic(caching config.CachingConfig) error {
	conn, err := kafka.Dial("tcp", l.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	// topic creation has to go through the controller
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find controller: %w", err)
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		l.logger.Warn("Could not connect to controller, using bootstrap broker", zap.Error(err))
		controllerConn = conn
	} else {
		defer controllerConn.Close()
	}

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             caching.Topic,
		NumPartitions:     caching.Partitions,
		ReplicationFactor: caching.ReplicationFactor,
		ConfigEntries: []kafka.ConfigEntry{
			{ConfigName: "cleanup.policy", ConfigValue: "compact"},
			{ConfigName: "segment.ms", ConfigValue: "86400000"},
			{ConfigName: "min.cleanable.dirty.ratio", ConfigValue: "0.01"},
		},
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create topic %s: %w", caching.Topic, err)
	}

	return nil
}

// Append writes one record. A nil value writes a tombstone.
func (l *KafkaReplicationLog) Append(ctx context.Context, key, value []byte) error {
	err := l.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", l.topic, err)
	}
	return nil
}

// ReplayAll reads every partition from its first retained offset up to the
// end offset observed when the replay starts.
func (l *KafkaReplicationLog) ReplayAll(ctx context.Context) ([]Record, error) {
	conn, err := kafka.DialContext(ctx, "tcp", l.brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	partitions, err := conn.ReadPartitions(l.topic)
	conn.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions of %s: %w", l.topic, err)
	}

	var records []Record
	for _, p := range partitions {
		partitionRecords, err := l.replayPartition(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to replay partition %d: %w", p.ID, err)
		}
		records = append(records, partitionRecords...)
	}

	return records, nil
}

func (l *KafkaReplicationLog) replayPartition(ctx context.Context, partition int) ([]Record, error) {
	leader, err := kafka.DialLeader(ctx, "tcp", l.brokers[0], l.topic, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to leader: %w", err)
	}
	first, last, err := leader.ReadOffsets()
	leader.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read offsets: %w", err)
	}

	if last <= first {
		return nil, nil
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   l.brokers,
		Topic:     l.topic,
		Partition: partition,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   500 * time.Millisecond,
	})
	defer reader.Close()

	if err := reader.SetOffset(first); err != nil {
		return nil, err
	}

	records := make([]Record, 0, last-first)
	for {
		msgCtx, cancel := context.WithTimeout(ctx, l.timeout)
		msg, err := reader.ReadMessage(msgCtx)
		cancel()

		if err != nil {
			return nil, fmt.Errorf("failed to read at offset %d: %w", reader.Offset(), err)
		}

		records = append(records, Record{
			Key:   msg.Key,
			Value: msg.Value,
			Time:  msg.Time,
		})

		if msg.Offset >= last-1 {
			break
		}
	}

	l.logger.Debug("Replayed partition",
		zap.Int("partition", partition),
		zap.Int64("first", first),
		zap.Int64("last", last),
		zap.Int("records", len(records)))

	return records, nil
}

func (l *KafkaReplicationLog) Close() error {
	if l.writer != nil {
		return l.writer.Close()
	}
	return nil
}
