package live

import (
	"context"
	"fmt"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/twmb/franz-go/pkg/kgo"
)

// maxFetchBytes bounds what a single live poll may pull from the brokers.
const maxFetchBytes = 102400

// Consumer is the subset of *kgo.Client used by a live session.
type Consumer interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	Close()
}

type ConsumerFactory interface {
	NewConsumer(cluster *config.ClusterConfig, topic string) (Consumer, error)
}

// KgoFactory creates franz-go consumers positioned at the end of every
// partition of the topic, without a consumer group.
type KgoFactory struct {
	ClientID string
}

func (f KgoFactory) NewConsumer(cluster *config.ClusterConfig, topic string) (Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cluster.BrokerList...),
		kgo.ClientID(f.ClientID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxBytes(maxFetchBytes),
		kgo.FetchMaxPartitionBytes(maxFetchBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create live consumer on %s/%s: %w", cluster.ID, topic, err)
	}
	return client, nil
}
