package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/kafka"
	"github.com/fede1024/kafka-view-sub000/core/live"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"go.uber.org/zap"
)

// WatermarkSource answers watermark queries for a cluster.
type WatermarkSource interface {
	Watermarks(ctx context.Context, cluster models.ClusterID, topic string, partitions []int32) (map[int32]kafka.Watermark, error)
}

// Handler holds dependencies for HTTP handlers. Every read goes through the
// shared caches; only group offsets and the tailer reach the clusters.
type Handler struct {
	config     *config.Config
	cache      *store.Cache
	watermarks WatermarkSource
	live       *live.Pool
	replay     store.ReplayStats
	logger     *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(cfg *config.Config, cache *store.Cache, watermarks WatermarkSource, pool *live.Pool, replay store.ReplayStats, logger *zap.Logger) *Handler {
	return &Handler{
		config:     cfg,
		cache:      cache,
		watermarks: watermarks,
		live:       pool,
		replay:     replay,
		logger:     logger.Named("http"),
	}
}

// clusterFromRequest resolves the {cluster} path variable, writing a 404 when
// the cluster is not configured.
func (h *Handler) clusterFromRequest(w http.ResponseWriter, id string) (*config.ClusterConfig, bool) {
	cluster, ok := h.config.Cluster(models.ClusterID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "Cluster not found", models.ErrClusterNotFound)
		return nil, false
	}
	return cluster, true
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	writeJSON(w, status, response)
}
