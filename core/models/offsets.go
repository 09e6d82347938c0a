package models

// NoOffset marks a partition without a known commit.
const NoOffset int64 = -1

// PartitionLag is the lag of one group on one partition.
type PartitionLag struct {
	Partition int32  `json:"partition"`
	Low       int64  `json:"low"`
	High      int64  `json:"high"`
	Committed int64  `json:"committed"`
	Lag       int64  `json:"lag"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Lag status values.
const (
	LagStatusEmpty           = "empty_topic"
	LagStatusOutOfRetention  = "out_of_retention"
	LagStatusNoCommit        = "no_commit"
	LagStatusWatermarkFailed = "watermark_unavailable"
)

// ComputeLag derives the lag of a committed offset against the partition watermarks.
func ComputeLag(partition int32, low, high, committed int64) PartitionLag {
	pl := PartitionLag{
		Partition: partition,
		Low:       low,
		High:      high,
		Committed: committed,
	}

	size := high - low
	switch {
	case committed == NoOffset:
		pl.Lag = NoOffset
		pl.Status = LagStatusNoCommit
	case size == 0:
		pl.Status = LagStatusEmpty
	default:
		pl.Lag = high - committed
		if pl.Lag > size {
			pl.Status = LagStatusOutOfRetention
		}
	}

	return pl
}
