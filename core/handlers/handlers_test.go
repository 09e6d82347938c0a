package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/kafka"
	"github.com/fede1024/kafka-view-sub000/core/live"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"github.com/fede1024/kafka-view-sub000/core/wire/out"
	"github.com/gorilla/mux"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

type fakeWatermarks struct {
	byTopic map[string]map[int32]kafka.Watermark
	errs    map[string]error
}

func (f *fakeWatermarks) Watermarks(ctx context.Context, cluster models.ClusterID, topic string, partitions []int32) (map[int32]kafka.Watermark, error) {
	if err := f.errs[topic]; err != nil {
		return nil, err
	}
	return f.byTopic[topic], nil
}

type fakeConsumer struct {
	records []*kgo.Record
}

func (f *fakeConsumer) PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches {
	records := f.records
	f.records = nil
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      "orders",
		Partitions: []kgo.FetchPartition{{Partition: 0, Records: records}},
	}}}}
}

func (f *fakeConsumer) Close() {}

type fakeFactory struct {
	records []*kgo.Record
}

func (f *fakeFactory) NewConsumer(cluster *config.ClusterConfig, topic string) (live.Consumer, error) {
	return &fakeConsumer{records: f.records}, nil
}

type testEnv struct {
	handler *Handler
	cache   *store.Cache
	wms     *fakeWatermarks
	factory *fakeFactory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Clusters: map[models.ClusterID]*config.ClusterConfig{
			"prod":    {ID: "prod", BrokerList: []string{"kafka-1:9092"}, JolokiaPort: 8778, EnableTailing: true},
			"staging": {ID: "staging", BrokerList: []string{"staging:9092"}},
		},
		Caching: config.CachingConfig{Cluster: "prod", Topic: "__kafka_view_cache"},
	}

	cache := store.NewCache(store.NewMockReplicationLog(), zap.NewNop())
	ctx := context.Background()
	cache.Brokers.Insert(ctx, "prod", []models.Broker{{ID: 1, Hostname: "kafka-1", Port: 9092}, {ID: 2, Hostname: "kafka-2", Port: 9092}})
	cache.Topics.Insert(ctx, models.ClusterTopicKey{Cluster: "prod", Topic: "orders"}, []models.Partition{{ID: 0, Leader: 1}, {ID: 1, Leader: 2}})
	cache.Topics.Insert(ctx, models.ClusterTopicKey{Cluster: "prod", Topic: "audit"}, []models.Partition{{ID: 0, Leader: -1, Error: "LEADER_NOT_AVAILABLE"}})
	cache.Groups.Insert(ctx, models.ClusterGroupKey{Cluster: "prod", Group: "billing"}, models.Group{
		Name: "billing", State: "Stable", Members: []models.Member{{ID: "m-1", ClientID: "billing-1", ClientHost: "/10.0.0.1"}},
	})
	cache.Offsets.Insert(ctx, models.GroupTopicKey{Cluster: "prod", Group: "billing", Topic: "orders"}, []int64{90, models.NoOffset})
	cache.Offsets.Insert(ctx, models.GroupTopicKey{Cluster: "prod", Group: "reports", Topic: "orders"}, []int64{10, 20})
	cache.Offsets.Insert(ctx, models.GroupTopicKey{Cluster: "prod", Group: "billing", Topic: "audit"}, []int64{5})
	cache.Metrics.Insert(ctx, models.BrokerKey{Cluster: "prod", BrokerID: 1}, models.BrokerMetrics{Topics: map[string]models.TopicRates{
		models.TotalTopic: {ByteRate: 300, MsgRate: 30},
		"orders":          {ByteRate: 100, MsgRate: 10},
	}})
	cache.Metrics.Insert(ctx, models.BrokerKey{Cluster: "prod", BrokerID: 2}, models.BrokerMetrics{Topics: map[string]models.TopicRates{
		"orders": {ByteRate: 50, MsgRate: 5},
	}})

	wms := &fakeWatermarks{
		byTopic: map[string]map[int32]kafka.Watermark{
			"orders": {0: {Low: 0, High: 100}, 1: {Low: 0, High: 40}},
		},
		errs: map[string]error{"audit": errors.New("not leader")},
	}
	factory := &fakeFactory{}
	pool := live.NewPool(factory, time.Minute, zap.NewNop())
	t.Cleanup(pool.Close)

	return &testEnv{
		handler: NewHandler(cfg, cache, wms, pool, store.ReplayStats{Records: 12, UniqueKeys: 8}, zap.NewNop()),
		cache:   cache,
		wms:     wms,
		factory: factory,
	}
}

func serve(handler http.HandlerFunc, vars map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = mux.SetURLVars(req, vars)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeItems[T any](t *testing.T, rec *httptest.ResponseRecorder) []T {
	t.Helper()

	var page struct {
		Total int `json:"total"`
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	if page.Total != len(page.Items) {
		t.Errorf("Expected total %d to match items %d", page.Total, len(page.Items))
	}
	return page.Items
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(env.handler.HealthCheck, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Caches map[string]int    `json:"caches"`
		Replay store.ReplayStats `json:"replay"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", body.Status)
	}
	if body.Caches[store.OffsetsCacheName] != 3 {
		t.Errorf("Expected 3 offset entries, got %d", body.Caches[store.OffsetsCacheName])
	}
	if body.Replay.Records != 12 {
		t.Errorf("Expected replay stats to be reported, got %+v", body.Replay)
	}
}

func TestListClusters(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[out.Cluster](t, serve(env.handler.ListClusters, nil))

	if len(items) != 2 {
		t.Fatalf("Expected 2 clusters, got %d", len(items))
	}
	prod := items[0]
	if prod.ID != "prod" || prod.BrokerCount != 2 || prod.TopicCount != 2 || prod.GroupCount != 2 {
		t.Errorf("Unexpected prod summary: %+v", prod)
	}
	if !prod.MetricsEnabled || !prod.TailingEnabled {
		t.Errorf("Expected metrics and tailing enabled on prod, got %+v", prod)
	}
	if items[1].ID != "staging" || items[1].BrokerCount != 0 {
		t.Errorf("Unexpected staging summary: %+v", items[1])
	}
}

func TestListBrokers(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[out.Broker](t, serve(env.handler.ListBrokers, map[string]string{"cluster": "prod"}))

	if len(items) != 2 {
		t.Fatalf("Expected 2 brokers, got %d", len(items))
	}
	if items[0].ByteRate != 300 || items[0].MsgRate != 30 {
		t.Errorf("Expected broker totals 300/30, got %+v", items[0])
	}
	if items[1].ByteRate != models.UnknownRate {
		t.Errorf("Expected unknown rate for broker without total, got %+v", items[1])
	}
}

func TestListBrokers_UnknownCluster(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(env.handler.ListBrokers, map[string]string{"cluster": "missing"})

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestListTopics(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[out.Topic](t, serve(env.handler.ListTopics, map[string]string{"cluster": "prod"}))

	if len(items) != 2 {
		t.Fatalf("Expected 2 topics, got %d", len(items))
	}
	audit, orders := items[0], items[1]
	if audit.Name != "audit" || audit.Errors != "LEADER_NOT_AVAILABLE" || audit.ByteRate != models.UnknownRate {
		t.Errorf("Unexpected audit topic: %+v", audit)
	}
	if orders.Name != "orders" || orders.Partitions != 2 || orders.ByteRate != 150 || orders.MsgRate != 15 {
		t.Errorf("Unexpected orders topic: %+v", orders)
	}
}

func TestGetTopic_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(env.handler.GetTopic, map[string]string{"cluster": "prod", "topic": "missing"})

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestListGroups_IncludesOffsetsOnly(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[out.Group](t, serve(env.handler.ListGroups, map[string]string{"cluster": "prod"}))

	if len(items) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(items))
	}
	billing, reports := items[0], items[1]
	if billing.State != "Stable" || billing.Members != 1 || len(billing.Topics) != 2 {
		t.Errorf("Unexpected billing group: %+v", billing)
	}
	if reports.State != OffsetsOnlyState || reports.Members != 0 || len(reports.Topics) != 1 {
		t.Errorf("Unexpected reports group: %+v", reports)
	}
}

func TestListTopicGroups(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[out.Group](t, serve(env.handler.ListTopicGroups, map[string]string{"cluster": "prod", "topic": "audit"}))

	if len(items) != 1 || items[0].Name != "billing" {
		t.Errorf("Expected only billing on audit, got %+v", items)
	}
}

func TestGetGroupMembers(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[models.Member](t, serve(env.handler.GetGroupMembers, map[string]string{"cluster": "prod", "group": "billing"}))

	if len(items) != 1 || items[0].ClientID != "billing-1" {
		t.Errorf("Unexpected members: %+v", items)
	}

	rec := serve(env.handler.GetGroupMembers, map[string]string{"cluster": "prod", "group": "reports"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for offsets only group, got %d", rec.Code)
	}
}

func TestGetGroupOffsets(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[out.TopicOffsets](t, serve(env.handler.GetGroupOffsets, map[string]string{"cluster": "prod", "group": "billing"}))

	if len(items) != 2 {
		t.Fatalf("Expected 2 topics, got %d", len(items))
	}

	audit := items[0]
	if audit.Topic != "audit" || len(audit.Partitions) != 1 {
		t.Fatalf("Unexpected audit offsets: %+v", audit)
	}
	if audit.Partitions[0].Status != models.LagStatusWatermarkFailed || audit.Partitions[0].Committed != 5 {
		t.Errorf("Expected unavailable watermark with committed offset kept, got %+v", audit.Partitions[0])
	}

	orders := items[1]
	if orders.Partitions[0].Lag != 10 {
		t.Errorf("Expected lag 10 on partition 0, got %+v", orders.Partitions[0])
	}
	if orders.Partitions[1].Status != models.LagStatusNoCommit {
		t.Errorf("Expected no commit on partition 1, got %+v", orders.Partitions[1])
	}
	if orders.TotalLag != 10 {
		t.Errorf("Expected total lag 10, got %d", orders.TotalLag)
	}
}

func TestTailTopic(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("x", 2000)
	env.factory.records = []*kgo.Record{
		{Partition: 0, Offset: 41, Key: []byte("k"), Value: []byte("short")},
		{Partition: 0, Offset: 42, Value: []byte(long)},
	}

	rec := serve(env.handler.TailTopic, map[string]string{"cluster": "prod", "topic": "orders", "id": "17"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var messages []out.TailedMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Payload != "short" || messages[0].Key != "k" {
		t.Errorf("Unexpected first message: %+v", messages[0])
	}
	if len(messages[1].Payload) != 1024+3 || !strings.HasSuffix(messages[1].Payload, "...") {
		t.Errorf("Expected payload truncated to 1024 chars, got %d chars", len(messages[1].Payload))
	}

	sessions := decodeItems[live.SessionInfo](t, serve(env.handler.ListLiveConsumers, nil))
	if len(sessions) != 1 || sessions[0].ID != 17 {
		t.Errorf("Expected live session 17, got %+v", sessions)
	}
}

func TestTailTopic_Disabled(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(env.handler.TailTopic, map[string]string{"cluster": "staging", "topic": "orders", "id": "1"})

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestTailTopic_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(env.handler.TailTopic, map[string]string{"cluster": "prod", "topic": "orders", "id": "abc"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestDumpCache(t *testing.T) {
	env := newTestEnv(t)
	items := decodeItems[out.CacheEntry](t, serve(env.handler.DumpCache, map[string]string{"name": store.OffsetsCacheName}))

	if len(items) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(items))
	}
	if items[0].Key != "prod/billing/audit" {
		t.Errorf("Expected entries sorted by key, got %s first", items[0].Key)
	}

	rec := serve(env.handler.DumpCache, map[string]string{"name": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}
