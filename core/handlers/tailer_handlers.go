package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/adapters"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	tailMaxMessages = 100
	tailPollTimeout = 3 * time.Second
)

// TailTopic handles GET /api/v0/tailer/{cluster}/{topic}/{id}
//
// The id names a live session: the first call creates a consumer positioned
// at the end of the topic, later calls return what arrived since.
func (h *Handler) TailTopic(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cluster, ok := h.clusterFromRequest(w, vars["cluster"])
	if !ok {
		return
	}
	if !cluster.EnableTailing {
		writeError(w, http.StatusForbidden, "Tailing is not enabled", models.ErrTailingDisabled)
		return
	}

	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Session id must be numeric", err)
		return
	}

	messages, err := h.live.Poll(r.Context(), id, cluster, vars["topic"], tailMaxMessages, tailPollTimeout)
	if err != nil {
		h.logger.Error("Live poll failed",
			zap.Int64("session", id),
			zap.String("cluster", string(cluster.ID)),
			zap.String("topic", vars["topic"]),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to poll topic", err)
		return
	}

	writeJSON(w, http.StatusOK, adapters.MessagesToWire(messages))
}
