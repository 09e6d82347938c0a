package metrics

import (
	"context"
	"fmt"
	"sort"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/scheduler"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"go.uber.org/zap"
)

// Unit is one broker whose metrics endpoint is polled in a cycle.
type Unit struct {
	Cluster models.ClusterID
	Broker  models.Broker
	Port    int
}

// Fetcher polls broker metrics endpoints and stores the results in the metrics cache.
type Fetcher struct {
	clusters map[models.ClusterID]*config.ClusterConfig
	cache    *store.Cache
	source   RateSource
	logger   *zap.Logger
}

func NewFetcher(clusters map[models.ClusterID]*config.ClusterConfig, cache *store.Cache, source RateSource, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		clusters: clusters,
		cache:    cache,
		source:   source,
		logger:   logger.Named("metrics"),
	}
}

// Units lists the brokers currently known for every cluster with a metrics port.
func (f *Fetcher) Units() []Unit {
	var units []Unit
	for _, kv := range f.cache.Brokers.Filter(nil) {
		cfg, ok := f.clusters[kv.Key]
		if !ok || cfg.JolokiaPort == 0 {
			continue
		}
		for _, broker := range kv.Value {
			units = append(units, Unit{Cluster: kv.Key, Broker: broker, Port: cfg.JolokiaPort})
		}
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].Cluster != units[j].Cluster {
			return units[i].Cluster < units[j].Cluster
		}
		return units[i].Broker.ID < units[j].Broker.ID
	})
	return units
}

// FetchBroker reads both rates of one broker. Either query failing leaves the
// cached metrics of that broker untouched.
func (f *Fetcher) FetchBroker(ctx context.Context, unit Unit) error {
	byteRates, err := f.source.Rates(ctx, unit.Broker.Hostname, unit.Port, ByteRateFilter)
	if err != nil {
		return fmt.Errorf("cluster %s broker %d: byte rate: %w", unit.Cluster, unit.Broker.ID, err)
	}
	msgRates, err := f.source.Rates(ctx, unit.Broker.Hostname, unit.Port, MsgRateFilter)
	if err != nil {
		return fmt.Errorf("cluster %s broker %d: message rate: %w", unit.Cluster, unit.Broker.ID, err)
	}

	metrics := models.NewBrokerMetrics()
	for topic, byteRate := range byteRates {
		metrics.Topics[topic] = models.TopicRates{ByteRate: byteRate, MsgRate: rateOrUnknown(msgRates, topic)}
	}
	for topic, msgRate := range msgRates {
		if _, ok := byteRates[topic]; !ok {
			metrics.Topics[topic] = models.TopicRates{ByteRate: models.UnknownRate, MsgRate: msgRate}
		}
	}

	key := models.BrokerKey{Cluster: unit.Cluster, BrokerID: unit.Broker.ID}
	if err := f.cache.Metrics.Insert(ctx, key, metrics); err != nil {
		return fmt.Errorf("cluster %s broker %d: %w", unit.Cluster, unit.Broker.ID, err)
	}
	return nil
}

func rateOrUnknown(rates map[string]float64, topic string) float64 {
	if rate, ok := rates[topic]; ok {
		return rate
	}
	return models.UnknownRate
}

// Task returns the scheduler task fanning out over Units every run.
func (f *Fetcher) Task(workers int) *scheduler.Group[Unit] {
	return scheduler.NewGroup(workers, f.Units, f.FetchBroker)
}

// AggregateTopics sums the rates of every broker of cluster with live metrics.
// Unknown rates are skipped; a topic for which no broker reported a rate keeps
// models.UnknownRate.
func AggregateTopics(cache *store.MetricsCache, cluster models.ClusterID) map[string]models.TopicRates {
	type acc struct {
		bytes, msgs           float64
		knownBytes, knownMsgs bool
	}
	sums := make(map[string]*acc)

	for _, kv := range cache.Filter(func(k models.BrokerKey, _ models.BrokerMetrics) bool { return k.Cluster == cluster }) {
		for topic, rates := range kv.Value.Topics {
			a, ok := sums[topic]
			if !ok {
				a = &acc{}
				sums[topic] = a
			}
			if rates.ByteRate >= 0 {
				a.bytes += rates.ByteRate
				a.knownBytes = true
			}
			if rates.MsgRate >= 0 {
				a.msgs += rates.MsgRate
				a.knownMsgs = true
			}
		}
	}

	out := make(map[string]models.TopicRates, len(sums))
	for topic, a := range sums {
		r := models.TopicRates{ByteRate: models.UnknownRate, MsgRate: models.UnknownRate}
		if a.knownBytes {
			r.ByteRate = a.bytes
		}
		if a.knownMsgs {
			r.MsgRate = a.msgs
		}
		out[topic] = r
	}
	return out
}
