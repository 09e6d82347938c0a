package handlers

import (
	"net/http"
	"sort"

	"github.com/fede1024/kafka-view-sub000/core/adapters"
	"github.com/fede1024/kafka-view-sub000/core/metrics"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/wire/out"
	"github.com/gorilla/mux"
)

// ListClusters handles GET /api/v0/clusters
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	clusters := make([]out.Cluster, 0, len(h.config.Clusters))
	for _, id := range h.config.ClusterIDs() {
		cfg := h.config.Clusters[id]
		brokers, _ := h.cache.Brokers.Get(id)
		clusters = append(clusters, out.Cluster{
			ID:             id,
			BrokerList:     cfg.BrokerList,
			BrokerCount:    len(brokers),
			TopicCount:     h.cache.Topics.Count(func(k models.ClusterTopicKey, _ []models.Partition) bool { return k.Cluster == id }),
			GroupCount:     len(buildGroupList(h.cache, id)),
			MetricsEnabled: cfg.JolokiaPort != 0,
			TailingEnabled: cfg.EnableTailing,
		})
	}

	writeJSON(w, http.StatusOK, out.Paginated{Total: len(clusters), Items: clusters})
}

// ListBrokers handles GET /api/v0/clusters/{cluster}/brokers
func (h *Handler) ListBrokers(w http.ResponseWriter, r *http.Request) {
	cluster, ok := h.clusterFromRequest(w, mux.Vars(r)["cluster"])
	if !ok {
		return
	}

	brokers, _ := h.cache.Brokers.Get(cluster.ID)
	items := make([]out.Broker, 0, len(brokers))
	for _, broker := range brokers {
		brokerMetrics, found := h.cache.Metrics.Get(models.BrokerKey{Cluster: cluster.ID, BrokerID: broker.ID})
		items = append(items, adapters.BrokerToWire(broker, brokerMetrics, found))
	}

	writeJSON(w, http.StatusOK, out.Paginated{Total: len(items), Items: items})
}

// ListTopics handles GET /api/v0/clusters/{cluster}/topics
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	cluster, ok := h.clusterFromRequest(w, mux.Vars(r)["cluster"])
	if !ok {
		return
	}

	rates := metrics.AggregateTopics(h.cache.Metrics, cluster.ID)
	topics := h.cache.Topics.Filter(func(k models.ClusterTopicKey, _ []models.Partition) bool {
		return k.Cluster == cluster.ID
	})

	items := make([]out.Topic, 0, len(topics))
	for _, kv := range topics {
		topicRates, found := rates[kv.Key.Topic]
		items = append(items, adapters.TopicToWire(kv.Key.Topic, kv.Value, topicRates, found))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	writeJSON(w, http.StatusOK, out.Paginated{Total: len(items), Items: items})
}

// GetTopic handles GET /api/v0/clusters/{cluster}/topics/{topic}
func (h *Handler) GetTopic(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cluster, ok := h.clusterFromRequest(w, vars["cluster"])
	if !ok {
		return
	}

	partitions, found := h.cache.Topics.Get(models.ClusterTopicKey{Cluster: cluster.ID, Topic: vars["topic"]})
	if !found {
		writeError(w, http.StatusNotFound, "Topic not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":       vars["topic"],
		"partitions": partitions,
	})
}
