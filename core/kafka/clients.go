package kafka

import (
	"fmt"
	"sync"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// ClientRegistry owns one franz-go client per configured cluster. It is built
// by main and handed to the components that need raw protocol requests.
type ClientRegistry struct {
	clusters map[models.ClusterID]*config.ClusterConfig
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[models.ClusterID]*kgo.Client
}

func NewClientRegistry(clusters map[models.ClusterID]*config.ClusterConfig, logger *zap.Logger) *ClientRegistry {
	return &ClientRegistry{
		clusters: clusters,
		logger:   logger.Named("clients"),
		clients:  make(map[models.ClusterID]*kgo.Client),
	}
}

// Client returns the client of cluster, creating it on first use.
func (r *ClientRegistry) Client(cluster models.ClusterID) (*kgo.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[cluster]; ok {
		return client, nil
	}

	cfg, ok := r.clusters[cluster]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrClusterNotFound, cluster)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BrokerList...),
		kgo.ClientID("kafka-view"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for cluster %s: %w", cluster, err)
	}

	r.logger.Info("Created cluster client", zap.String("cluster", string(cluster)), zap.Strings("brokers", cfg.BrokerList))
	r.clients[cluster] = client
	return client, nil
}

func (r *ClientRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, client := range r.clients {
		client.Close()
		delete(r.clients, id)
	}
}
