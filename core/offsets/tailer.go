package offsets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"github.com/fede1024/kafka-view-sub000/core/telemetry"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// OffsetsTopic is the internal topic holding committed offsets.
const OffsetsTopic = "__consumer_offsets"

const pollTimeout = 200 * time.Millisecond

// Poller is the subset of *kgo.Client the tailer consumes through.
type Poller interface {
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// Tailer follows the offsets topic of one cluster and periodically merges
// what it read into the offsets cache.
type Tailer struct {
	cluster       models.ClusterID
	poller        Poller
	cache         *store.Cache
	buffer        *Buffer
	positions     []int64
	flushInterval time.Duration
	logger        *zap.Logger
}

// NewTailer creates a consumer on the offsets topic of cluster. It resumes
// from the positions stored in the internal offsets cache when there are
// any, otherwise it starts from the earliest retained record.
func NewTailer(cluster *config.ClusterConfig, clientID string, cache *store.Cache, flushInterval time.Duration, logger *zap.Logger) (*Tailer, error) {
	logger = logger.Named("offsets").With(zap.String("cluster", string(cluster.ID)))

	opts := []kgo.Opt{
		kgo.SeedBrokers(cluster.BrokerList...),
		kgo.ClientID(clientID),
	}

	positions, _ := cache.InternalOffsets.Get(cluster.ID)
	if len(positions) > 0 {
		logger.Info("Previous positions found, assigning partitions explicitly", zap.Int64s("positions", positions))
		assigned := make(map[int32]kgo.Offset, len(positions))
		for partition, pos := range positions {
			if pos < 0 {
				assigned[int32(partition)] = kgo.NewOffset().AtStart()
			} else {
				assigned[int32(partition)] = kgo.NewOffset().At(pos)
			}
		}
		opts = append(opts, kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{OffsetsTopic: assigned}))
	} else {
		logger.Info("No previous positions found, consuming from the start")
		opts = append(opts,
			kgo.ConsumeTopics(OffsetsTopic),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		)
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create offsets consumer for %s: %w", cluster.ID, err)
	}

	return NewTailerWithPoller(cluster.ID, client, cache, flushInterval, logger), nil
}

// NewTailerWithPoller creates a tailer on an existing poller.
func NewTailerWithPoller(cluster models.ClusterID, poller Poller, cache *store.Cache, flushInterval time.Duration, logger *zap.Logger) *Tailer {
	return &Tailer{
		cluster:       cluster,
		poller:        poller,
		cache:         cache,
		buffer:        NewBuffer(),
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Run consumes until ctx is done or the client is closed. Buffered updates are
// flushed every flush interval and once more on exit.
func (t *Tailer) Run(ctx context.Context) error {
	defer t.poller.Close()

	t.logger.Info("Starting offsets tailer", zap.Duration("flush_interval", t.flushInterval))
	lastFlush := time.Now()

	for {
		if ctx.Err() != nil {
			t.finalFlush(ctx)
			return nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		fetches := t.poller.PollFetches(pollCtx)
		cancel()

		if fetches.IsClientClosed() {
			t.finalFlush(ctx)
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			t.logger.Warn("Fetch error", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})
		fetches.EachRecord(t.handleRecord)

		if time.Since(lastFlush) >= t.flushInterval {
			t.flush(ctx)
			lastFlush = time.Now()
		}
	}
}

func (t *Tailer) handleRecord(record *kgo.Record) {
	t.positions = insertAt(t.positions, int(record.Partition), record.Offset+1)

	update, err := Decode(record.Key, record.Value)
	if err != nil {
		telemetry.OffsetRecords.WithLabelValues(string(t.cluster), "decode_error").Inc()
		t.logger.Warn("Skipping undecodable record",
			zap.Int32("partition", record.Partition),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		return
	}

	telemetry.OffsetRecords.WithLabelValues(string(t.cluster), update.Kind.String()).Inc()
	t.buffer.Apply(update)
}

func (t *Tailer) flush(ctx context.Context) {
	updates := t.buffer.Len()
	if err := t.buffer.Flush(ctx, t.cache.Offsets, t.cluster); err != nil {
		t.logger.Error("Failed to flush offsets", zap.Error(err))
	}

	if len(t.positions) > 0 {
		existing, _ := t.cache.InternalOffsets.Get(t.cluster)
		positions := mergePositions(t.positions, existing)
		if err := t.cache.InternalOffsets.Insert(ctx, t.cluster, positions); err != nil {
			t.logger.Error("Failed to store consumer positions", zap.Error(err))
		}
	}

	t.logger.Debug("Flushed offsets buffer", zap.Int("updates", updates))
}

func (t *Tailer) finalFlush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	t.flush(ctx)
}

// mergePositions keeps the furthest known position of every partition, so an
// instance lagging behind never moves the stored positions backwards.
func mergePositions(current, existing []int64) []int64 {
	n := max(len(current), len(existing))
	merged := make([]int64, n)
	for i := range merged {
		merged[i] = max(at(current, i), at(existing, i))
	}
	return merged
}
