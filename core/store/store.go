package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/telemetry"
	"go.uber.org/zap"
)

// Cache names used as the first component of every log key.
const (
	BrokersCacheName         = "brokers"
	TopicsCacheName          = "topics"
	GroupsCacheName          = "groups"
	MetricsCacheName         = "metrics"
	OffsetsCacheName         = "offsets"
	InternalOffsetsCacheName = "internal_offsets"
)

type (
	BrokerCache          = ReplicatedMap[models.ClusterID, []models.Broker]
	TopicCache           = ReplicatedMap[models.ClusterTopicKey, []models.Partition]
	GroupCache           = ReplicatedMap[models.ClusterGroupKey, models.Group]
	MetricsCache         = ReplicatedMap[models.BrokerKey, models.BrokerMetrics]
	OffsetsCache         = ReplicatedMap[models.GroupTopicKey, []int64]
	InternalOffsetsCache = ReplicatedMap[models.ClusterID, []int64]
)

// replayTarget is implemented by every ReplicatedMap instantiation.
type replayTarget interface {
	Name() string
	Len() int
	apply(rawKey, value []byte, at time.Time) error
}

// Cache groups the typed replicated maps sharing one replication log.
type Cache struct {
	Brokers         *BrokerCache
	Topics          *TopicCache
	Groups          *GroupCache
	Metrics         *MetricsCache
	Offsets         *OffsetsCache
	InternalOffsets *InternalOffsetsCache

	log      ReplicationLog
	targets  map[string]replayTarget
	replayed atomic.Bool
	logger   *zap.Logger
}

// ReplayStats summarizes a startup replay.
type ReplayStats struct {
	Records    int           `json:"records"`
	UniqueKeys int           `json:"unique_keys"`
	Skipped    int           `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
}

func NewCache(log ReplicationLog, logger *zap.Logger) *Cache {
	c := &Cache{
		Brokers:         NewReplicatedMap[models.ClusterID, []models.Broker](BrokersCacheName, log),
		Topics:          NewReplicatedMap[models.ClusterTopicKey, []models.Partition](TopicsCacheName, log),
		Groups:          NewReplicatedMap[models.ClusterGroupKey, models.Group](GroupsCacheName, log),
		Metrics:         NewReplicatedMap[models.BrokerKey, models.BrokerMetrics](MetricsCacheName, log),
		Offsets:         NewReplicatedMap[models.GroupTopicKey, []int64](OffsetsCacheName, log),
		InternalOffsets: NewReplicatedMap[models.ClusterID, []int64](InternalOffsetsCacheName, log),
		log:             log,
		logger:          logger.Named("cache"),
	}

	c.targets = make(map[string]replayTarget)
	for _, t := range []replayTarget{c.Brokers, c.Topics, c.Groups, c.Metrics, c.Offsets, c.InternalOffsets} {
		c.targets[t.Name()] = t
	}

	return c
}

// Replay rebuilds every map from the replication log. It must run once,
// before the caches are exposed to readers or fetchers.
func (c *Cache) Replay(ctx context.Context) (ReplayStats, error) {
	if !c.replayed.CompareAndSwap(false, true) {
		return ReplayStats{}, errors.New("cache already replayed")
	}

	start := time.Now()
	records, err := c.log.ReplayAll(ctx)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to replay cache log: %w", err)
	}

	stats := ReplayStats{Records: len(records)}
	keys := make(map[string]struct{})
	for _, rec := range records {
		name, key, err := unwrapKey(rec.Key)
		if err != nil {
			stats.Skipped++
			c.logger.Debug("Skipping record with malformed key", zap.Error(err))
			continue
		}

		target, ok := c.targets[name]
		if !ok {
			stats.Skipped++
			c.logger.Debug("Skipping record for unknown cache", zap.String("cache", name))
			continue
		}

		if err := target.apply(key, rec.Value, rec.Time); err != nil {
			stats.Skipped++
			c.logger.Warn("Skipping undecodable record", zap.String("cache", name), zap.Error(err))
			continue
		}
		keys[string(rec.Key)] = struct{}{}
	}

	stats.UniqueKeys = len(keys)
	stats.Elapsed = time.Since(start)
	c.UpdateGauges()

	c.logger.Info("Cache replay completed",
		zap.Int("records", stats.Records),
		zap.Int("unique_keys", stats.UniqueKeys),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("elapsed", stats.Elapsed))

	return stats, nil
}

// Sizes returns the number of entries per cache name.
func (c *Cache) Sizes() map[string]int {
	sizes := make(map[string]int, len(c.targets))
	for name, t := range c.targets {
		sizes[name] = t.Len()
	}
	return sizes
}

func (c *Cache) UpdateGauges() {
	for name, size := range c.Sizes() {
		telemetry.CacheEntries.WithLabelValues(name).Set(float64(size))
	}
}

// RemoveExpired applies the per-family TTLs. Internal offsets never expire,
// the offset tailers resume from them.
func (c *Cache) RemoveExpired(ttl config.TTLConfig) map[string]int {
	removed := map[string]int{
		BrokersCacheName: c.Brokers.RemoveExpired(ttl.Metadata),
		TopicsCacheName:  c.Topics.RemoveExpired(ttl.Metadata),
		GroupsCacheName:  c.Groups.RemoveExpired(ttl.Metadata),
		MetricsCacheName: c.Metrics.RemoveExpired(ttl.Metrics),
		OffsetsCacheName: c.Offsets.RemoveExpired(ttl.Offsets),
	}

	for name, n := range removed {
		if n > 0 {
			telemetry.CacheExpired.WithLabelValues(name).Add(float64(n))
		}
	}
	c.UpdateGauges()

	return removed
}

// RunExpiry sweeps expired entries every interval until ctx is done.
func (c *Cache) RunExpiry(ctx context.Context, interval time.Duration, ttl config.TTLConfig) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := c.RemoveExpired(ttl)
			c.logger.Debug("Expiry sweep completed", zap.Any("removed", removed))
		}
	}
}

func (c *Cache) Close() error {
	return c.log.Close()
}
