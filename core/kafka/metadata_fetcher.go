package kafka

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"go.uber.org/zap"
)

// DefaultMetadataTimeout bounds one metadata fetch cycle.
const DefaultMetadataTimeout = 30 * time.Second

// MetadataFetcher refreshes the broker, topic and group caches of one cluster.
// It is meant to be registered as a scheduler task under the cluster id.
type MetadataFetcher struct {
	cluster models.ClusterID
	source  MetadataSource
	cache   *store.Cache
	timeout time.Duration
	logger  *zap.Logger
}

func NewMetadataFetcher(cluster models.ClusterID, source MetadataSource, cache *store.Cache, logger *zap.Logger) *MetadataFetcher {
	return &MetadataFetcher{
		cluster: cluster,
		source:  source,
		cache:   cache,
		timeout: DefaultMetadataTimeout,
		logger:  logger.Named("metadata").With(zap.String("cluster", string(cluster))),
	}
}

// Run fetches the cluster state and inserts each entity as its own entry.
// The first failure aborts the remaining inserts of this cycle.
func (f *MetadataFetcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()

	md, err := f.source.FetchMetadata(ctx)
	if err != nil {
		return fmt.Errorf("cluster %s: %w", f.cluster, err)
	}

	if err := f.cache.Brokers.Insert(ctx, f.cluster, md.Brokers); err != nil {
		return fmt.Errorf("cluster %s: failed to store brokers: %w", f.cluster, err)
	}

	topics := make([]string, 0, len(md.Topics))
	for name := range md.Topics {
		topics = append(topics, name)
	}
	sort.Strings(topics)

	for _, name := range topics {
		partitions := md.Topics[name]
		sort.Slice(partitions, func(i, j int) bool { return partitions[i].ID < partitions[j].ID })

		key := models.ClusterTopicKey{Cluster: f.cluster, Topic: name}
		if err := f.cache.Topics.Insert(ctx, key, partitions); err != nil {
			return fmt.Errorf("cluster %s: failed to store topic %s: %w", f.cluster, name, err)
		}
	}

	groups, err := f.source.FetchGroups(ctx, md.Brokers)
	if err != nil {
		return fmt.Errorf("cluster %s: %w", f.cluster, err)
	}

	for _, group := range groups {
		key := models.ClusterGroupKey{Cluster: f.cluster, Group: group.Name}
		if err := f.cache.Groups.Insert(ctx, key, group); err != nil {
			return fmt.Errorf("cluster %s: failed to store group %s: %w", f.cluster, group.Name, err)
		}
	}

	f.logger.Debug("Metadata refreshed",
		zap.Int("brokers", len(md.Brokers)),
		zap.Int("topics", len(topics)),
		zap.Int("groups", len(groups)),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}
