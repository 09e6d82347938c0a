package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kafka_view_cache_entries",
		Help: "Number of entries currently held by each replicated cache.",
	}, []string{"cache"})
	CacheExpired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_view_cache_expired_total",
		Help: "Entries removed from each cache by the expiry sweep.",
	}, []string{"cache"})
	ReplicationAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_view_replication_appends_total",
		Help: "Appends to the replication log labeled by cache and result.",
	}, []string{"cache", "result"})
	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_view_task_duration_seconds",
		Help:    "Duration of scheduled task runs.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"scheduler", "task"})
	TaskFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_view_task_failures_total",
		Help: "Scheduled task runs that returned an error or panicked.",
	}, []string{"scheduler", "task"})
	OffsetRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_view_offset_records_total",
		Help: "Offset log records processed labeled by cluster and outcome.",
	}, []string{"cluster", "outcome"})
	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kafka_view_live_sessions",
		Help: "Live consumer sessions currently open.",
	})
)

func init() {
	prometheus.MustRegister(
		CacheEntries,
		CacheExpired,
		ReplicationAppends,
		TaskDuration,
		TaskFailures,
		OffsetRecords,
		LiveSessions,
	)
}
