package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
	"golang.org/x/sync/errgroup"
)

// DefaultWatermarkTimeout bounds one watermark query.
const DefaultWatermarkTimeout = 10 * time.Second

// ListOffsets timestamps selecting the earliest and latest offsets.
const (
	earliestTimestamp int64 = -2
	latestTimestamp   int64 = -1
)

// Watermark is the offset range of one partition. Err is set when the broker
// could not answer for that partition.
type Watermark struct {
	Low  int64
	High int64
	Err  error
}

// FetchWatermarks queries the low and high watermarks of the given partitions.
// The two ListOffsets requests run concurrently.
func FetchWatermarks(ctx context.Context, requestor kmsg.Requestor, topic string, partitions []int32) (map[int32]Watermark, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultWatermarkTimeout)
	defer cancel()

	var low, high map[int32]offsetResult

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		low, err = listOffsets(egCtx, requestor, topic, partitions, earliestTimestamp)
		return err
	})
	eg.Go(func() error {
		var err error
		high, err = listOffsets(egCtx, requestor, topic, partitions, latestTimestamp)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch watermarks of %s: %w", topic, err)
	}

	out := make(map[int32]Watermark, len(partitions))
	for _, p := range partitions {
		l, okLow := low[p]
		h, okHigh := high[p]
		wm := Watermark{Low: l.offset, High: h.offset}
		switch {
		case !okLow || !okHigh:
			wm.Err = fmt.Errorf("partition %d missing from response", p)
		case l.err != nil:
			wm.Err = l.err
		case h.err != nil:
			wm.Err = h.err
		}
		out[p] = wm
	}
	return out, nil
}

// Watermarks resolves the cluster client and fetches the watermarks of topic.
func (r *ClientRegistry) Watermarks(ctx context.Context, cluster models.ClusterID, topic string, partitions []int32) (map[int32]Watermark, error) {
	client, err := r.Client(cluster)
	if err != nil {
		return nil, err
	}
	return FetchWatermarks(ctx, client, topic, partitions)
}

type offsetResult struct {
	offset int64
	err    error
}

func listOffsets(ctx context.Context, requestor kmsg.Requestor, topic string, partitions []int32, timestamp int64) (map[int32]offsetResult, error) {
	req := kmsg.NewPtrListOffsetsRequest()
	req.ReplicaID = -1

	reqTopic := kmsg.NewListOffsetsRequestTopic()
	reqTopic.Topic = topic
	for _, p := range partitions {
		reqPartition := kmsg.NewListOffsetsRequestTopicPartition()
		reqPartition.Partition = p
		reqPartition.Timestamp = timestamp
		reqTopic.Partitions = append(reqTopic.Partitions, reqPartition)
	}
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, requestor)
	if err != nil {
		return nil, err
	}

	results := make(map[int32]offsetResult, len(partitions))
	for _, t := range resp.Topics {
		if t.Topic != topic {
			continue
		}
		for _, p := range t.Partitions {
			results[p.Partition] = offsetResult{
				offset: p.Offset,
				err:    kerr.ErrorForCode(p.ErrorCode),
			}
		}
	}
	return results, nil
}
