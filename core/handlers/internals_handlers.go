package handlers

import (
	"net/http"

	"github.com/fede1024/kafka-view-sub000/core/adapters"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"github.com/fede1024/kafka-view-sub000/core/wire/out"
	"github.com/gorilla/mux"
)

// DumpCache handles GET /api/v0/internals/cache/{name}
func (h *Handler) DumpCache(w http.ResponseWriter, r *http.Request) {
	var entries []out.CacheEntry
	switch name := mux.Vars(r)["name"]; name {
	case store.BrokersCacheName:
		entries = adapters.CacheEntriesToWire(h.cache.Brokers)
	case store.TopicsCacheName:
		entries = adapters.CacheEntriesToWire(h.cache.Topics)
	case store.GroupsCacheName:
		entries = adapters.CacheEntriesToWire(h.cache.Groups)
	case store.MetricsCacheName:
		entries = adapters.CacheEntriesToWire(h.cache.Metrics)
	case store.OffsetsCacheName:
		entries = adapters.CacheEntriesToWire(h.cache.Offsets)
	case store.InternalOffsetsCacheName:
		entries = adapters.CacheEntriesToWire(h.cache.InternalOffsets)
	default:
		writeError(w, http.StatusNotFound, "Cache not found", models.ErrUnknownCache)
		return
	}

	writeJSON(w, http.StatusOK, out.Paginated{Total: len(entries), Items: entries})
}

// ListLiveConsumers handles GET /api/v0/internals/live_consumers
func (h *Handler) ListLiveConsumers(w http.ResponseWriter, r *http.Request) {
	sessions := h.live.Sessions()
	writeJSON(w, http.StatusOK, out.Paginated{Total: len(sessions), Items: sessions})
}
