package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	segkafka "github.com/segmentio/kafka-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

// SetupTestKafka starts a Kafka container for integration tests
func SetupTestKafka(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	kafkaContainer, err := kafka.Run(ctx,
		"apache/kafka:latest",
		kafka.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("Failed to start Kafka container: %v", err)
	}

	brokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		kafkaContainer.Terminate(ctx)
		t.Fatalf("Failed to get Kafka brokers: %v", err)
	}

	if len(brokers) == 0 {
		kafkaContainer.Terminate(ctx)
		t.Fatal("No Kafka brokers returned")
	}

	broker := brokers[0]

	if err := waitForKafka(broker, 30*time.Second); err != nil {
		kafkaContainer.Terminate(ctx)
		t.Fatalf("Kafka not ready: %v", err)
	}

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	}

	return broker, cleanup
}

// waitForKafka waits for Kafka to be ready
func waitForKafka(broker string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn, err := segkafka.Dial("tcp", broker)
		if err == nil {
			_, err = conn.Brokers()
			conn.Close()
			if err == nil {
				return nil
			}
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("Kafka not ready after %v", timeout)
}

// SetupTestReplicationLog creates a Kafka backed replication log for testing
func SetupTestReplicationLog(t *testing.T, broker, topic string) (*KafkaReplicationLog, func()) {
	t.Helper()

	log, err := NewKafkaReplicationLog([]string{broker}, config.CachingConfig{
		Topic:             topic,
		Partitions:        3,
		ReplicationFactor: 1,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create replication log: %v", err)
	}

	cleanup := func() {
		log.Close()
	}

	return log, cleanup
}
