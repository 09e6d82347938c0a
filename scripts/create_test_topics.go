package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/segmentio/kafka-go"
)

// Creates sample topics on every cluster of the config file named by
// KAFKA_VIEW_CONFIG, produces a few messages and commits offsets for a sample
// group so the offsets tailer has something to read.
func main() {
	testTopics := []string{
		"orders",
		"users",
		"events",
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	for _, id := range cfg.ClusterIDs() {
		cluster := cfg.Clusters[id]
		log.Printf("\n=== Creating topics on %s (%s) ===", id, cluster.BootstrapServers())

		topicConfigs := make([]kafka.TopicConfig, 0, len(testTopics)+1)
		for _, topicName := range testTopics {
			topicConfigs = append(topicConfigs, kafka.TopicConfig{
				Topic:             topicName,
				NumPartitions:     3,
				ReplicationFactor: 1,
			})
		}
		if id == cfg.Caching.Cluster {
			topicConfigs = append(topicConfigs, kafka.TopicConfig{
				Topic:             cfg.Caching.Topic,
				NumPartitions:     cfg.Caching.Partitions,
				ReplicationFactor: cfg.Caching.ReplicationFactor,
				ConfigEntries: []kafka.ConfigEntry{
					{ConfigName: "cleanup.policy", ConfigValue: "compact"},
				},
			})
		}

		if err := createTopics(cluster.BrokerList[0], topicConfigs); err != nil {
			log.Printf("ERROR: %s: %v", id, err)
			continue
		}

		// Wait for topic creation to propagate
		time.Sleep(1 * time.Second)

		if err := produceAndCommit(cluster.BrokerList, testTopics); err != nil {
			log.Printf("ERROR: %s: %v", id, err)
		}
	}

	log.Printf("\n=== Done! ===")
}

func createTopics(broker string, topicConfigs []kafka.TopicConfig) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", broker, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	// Try to connect to controller, fallback to original broker
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		log.Printf("WARNING: Could not connect to controller, using original broker")
		controllerConn = conn
	} else {
		defer controllerConn.Close()
	}

	for _, tc := range topicConfigs {
		if err := controllerConn.CreateTopics(tc); err != nil {
			log.Printf("  - Topic %s: %v", tc.Topic, err)
			continue
		}
		log.Printf("  ✓ Created topic: %s (%d partitions, RF=%d)", tc.Topic, tc.NumPartitions, tc.ReplicationFactor)
	}
	return nil
}

func produceAndCommit(brokers []string, topics []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.RoundRobin{},
	}
	defer writer.Close()

	for _, topic := range topics {
		messages := make([]kafka.Message, 0, 30)
		for i := 0; i < 30; i++ {
			messages = append(messages, kafka.Message{
				Topic: topic,
				Key:   []byte(strconv.Itoa(i)),
				Value: []byte(fmt.Sprintf(`{"topic":%q,"sequence":%d}`, topic, i)),
			})
		}
		if err := writer.WriteMessages(ctx, messages...); err != nil {
			return fmt.Errorf("failed to produce to %s: %w", topic, err)
		}
		log.Printf("  ✓ Produced %d messages to %s", len(messages), topic)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "kafka-view-sample",
		GroupTopics: topics,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	for i := 0; i < 10; i++ {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("failed to consume sample messages: %w", err)
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to commit %s/%d: %w", msg.Topic, msg.Partition, err)
		}
	}
	log.Printf("  ✓ Committed offsets for group kafka-view-sample")
	return nil
}
