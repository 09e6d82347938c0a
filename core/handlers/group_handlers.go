package handlers

import (
	"net/http"
	"sort"

	"github.com/fede1024/kafka-view-sub000/core/kafka"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"github.com/fede1024/kafka-view-sub000/core/wire/out"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OffsetsOnlyState is reported for groups known only from committed offsets.
const OffsetsOnlyState = "Offsets only"

const watermarkWorkers = 8

// buildGroupList merges the groups reported by the coordinators with the ones
// that only have committed offsets.
func buildGroupList(cache *store.Cache, cluster models.ClusterID) map[string]*out.Group {
	groups := make(map[string]*out.Group)
	for _, kv := range cache.Groups.Filter(func(k models.ClusterGroupKey, _ models.Group) bool { return k.Cluster == cluster }) {
		groups[kv.Key.Group] = &out.Group{
			Name:    kv.Key.Group,
			State:   kv.Value.State,
			Members: len(kv.Value.Members),
			Topics:  []string{},
		}
	}

	for _, key := range cache.Offsets.Keys() {
		if key.Cluster != cluster {
			continue
		}
		g, ok := groups[key.Group]
		if !ok {
			g = &out.Group{Name: key.Group, State: OffsetsOnlyState, Topics: []string{}}
			groups[key.Group] = g
		}
		g.Topics = append(g.Topics, key.Topic)
	}

	for _, g := range groups {
		sort.Strings(g.Topics)
	}
	return groups
}

func sortedGroups(groups map[string]*out.Group, keep func(*out.Group) bool) []out.Group {
	items := make([]out.Group, 0, len(groups))
	for _, g := range groups {
		if keep == nil || keep(g) {
			items = append(items, *g)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// ListGroups handles GET /api/v0/clusters/{cluster}/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	cluster, ok := h.clusterFromRequest(w, mux.Vars(r)["cluster"])
	if !ok {
		return
	}

	items := sortedGroups(buildGroupList(h.cache, cluster.ID), nil)
	writeJSON(w, http.StatusOK, out.Paginated{Total: len(items), Items: items})
}

// ListTopicGroups handles GET /api/v0/clusters/{cluster}/topics/{topic}/groups
func (h *Handler) ListTopicGroups(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cluster, ok := h.clusterFromRequest(w, vars["cluster"])
	if !ok {
		return
	}

	topic := vars["topic"]
	items := sortedGroups(buildGroupList(h.cache, cluster.ID), func(g *out.Group) bool {
		i := sort.SearchStrings(g.Topics, topic)
		return i < len(g.Topics) && g.Topics[i] == topic
	})
	writeJSON(w, http.StatusOK, out.Paginated{Total: len(items), Items: items})
}

// GetGroupMembers handles GET /api/v0/clusters/{cluster}/groups/{group}/members
func (h *Handler) GetGroupMembers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cluster, ok := h.clusterFromRequest(w, vars["cluster"])
	if !ok {
		return
	}

	group, found := h.cache.Groups.Get(models.ClusterGroupKey{Cluster: cluster.ID, Group: vars["group"]})
	if !found {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, out.Paginated{Total: len(group.Members), Items: group.Members})
}

// GetGroupOffsets handles GET /api/v0/clusters/{cluster}/groups/{group}/offsets
//
// Watermarks are queried per topic; a topic whose query fails is still listed
// with its committed offsets and a watermark_unavailable status.
func (h *Handler) GetGroupOffsets(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cluster, ok := h.clusterFromRequest(w, vars["cluster"])
	if !ok {
		return
	}
	group := vars["group"]

	offsets := h.cache.Offsets.Filter(func(k models.GroupTopicKey, _ []int64) bool {
		return k.Cluster == cluster.ID && k.Group == group
	})
	sort.Slice(offsets, func(i, j int) bool { return offsets[i].Key.Topic < offsets[j].Key.Topic })

	items := make([]out.TopicOffsets, len(offsets))

	eg, ctx := errgroup.WithContext(r.Context())
	eg.SetLimit(watermarkWorkers)
	for i, kv := range offsets {
		i, kv := i, kv
		eg.Go(func() error {
			partitions := make([]int32, len(kv.Value))
			for p := range partitions {
				partitions[p] = int32(p)
			}

			wms, err := h.watermarks.Watermarks(ctx, cluster.ID, kv.Key.Topic, partitions)
			if err != nil {
				h.logger.Warn("Failed to fetch watermarks",
					zap.String("cluster", string(cluster.ID)),
					zap.String("topic", kv.Key.Topic),
					zap.Error(err))
			}
			items[i] = topicOffsets(kv.Key.Topic, kv.Value, wms, err)
			return nil
		})
	}
	eg.Wait()

	writeJSON(w, http.StatusOK, out.Paginated{Total: len(items), Items: items})
}

func topicOffsets(topic string, committed []int64, wms map[int32]kafka.Watermark, wmErr error) out.TopicOffsets {
	result := out.TopicOffsets{Topic: topic, Partitions: make([]models.PartitionLag, 0, len(committed))}

	for p, offset := range committed {
		partition := int32(p)
		wm, found := wms[partition]

		var lag models.PartitionLag
		switch {
		case wmErr != nil:
			lag = unavailableLag(partition, offset, wmErr.Error())
		case !found:
			lag = unavailableLag(partition, offset, "no watermark returned")
		case wm.Err != nil:
			lag = unavailableLag(partition, offset, wm.Err.Error())
		default:
			lag = models.ComputeLag(partition, wm.Low, wm.High, offset)
		}

		if lag.Lag > 0 && lag.Status == "" {
			result.TotalLag += lag.Lag
		}
		result.Partitions = append(result.Partitions, lag)
	}
	return result
}

func unavailableLag(partition int32, committed int64, reason string) models.PartitionLag {
	return models.PartitionLag{
		Partition: partition,
		Low:       models.NoOffset,
		High:      models.NoOffset,
		Committed: committed,
		Lag:       models.NoOffset,
		Status:    models.LagStatusWatermarkFailed,
		Error:     reason,
	}
}
