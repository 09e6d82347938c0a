package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"go.uber.org/zap"
)

func TestNewReplicatedMap_NilLogPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for nil replication log")
		}
	}()
	NewReplicatedMap[string, int]("broken", nil)
}

func TestInsert_AppendsToLog(t *testing.T) {
	log := NewMockReplicationLog()
	m := NewReplicatedMap[models.ClusterID, []models.Broker]("brokers", log)

	brokers := []models.Broker{{ID: 1, Hostname: "kafka-1", Port: 9092}}
	if err := m.Insert(context.Background(), "prod", brokers); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if log.AppendCalls != 1 {
		t.Errorf("Expected 1 append call, got %d", log.AppendCalls)
	}

	got, ok := m.Get("prod")
	if !ok {
		t.Fatal("Expected entry for prod")
	}
	if !reflect.DeepEqual(got, brokers) {
		t.Errorf("Expected %v, got %v", brokers, got)
	}

	if string(log.Records[0].Key) != `["brokers","\"prod\""]` {
		t.Errorf("Expected wrapped key, got %s", log.Records[0].Key)
	}
}

func TestInsert_UnchangedValueSkipsAppend(t *testing.T) {
	log := NewMockReplicationLog()
	m := NewReplicatedMap[string, int]("counts", log)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	m.Insert(ctx, "a", 1)
	clock = clock.Add(time.Minute)
	if err := m.Insert(ctx, "a", 1); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if log.AppendCalls != 1 {
		t.Errorf("Expected 1 append call, got %d", log.AppendCalls)
	}

	entry, _ := m.Entry("a")
	if !entry.Updated.Equal(clock) {
		t.Errorf("Expected timestamp refreshed to %v, got %v", clock, entry.Updated)
	}
}

func TestInsert_AppendErrorKeepsLocalWrite(t *testing.T) {
	log := NewMockReplicationLog()
	log.AppendError = fmt.Errorf("broker unavailable")
	m := NewReplicatedMap[string, int]("counts", log)

	err := m.Insert(context.Background(), "a", 7)
	if err == nil {
		t.Fatal("Expected error on append failure, got nil")
	}

	got, ok := m.Get("a")
	if !ok || got != 7 {
		t.Errorf("Expected local value 7 to be kept, got %d (present=%v)", got, ok)
	}
}

func TestInsert_RetryAfterAppendErrorReachesLog(t *testing.T) {
	log := NewMockReplicationLog()
	log.SetAppendError(fmt.Errorf("broker down"))
	m := NewReplicatedMap[models.ClusterID, []models.Broker](BrokersCacheName, log)
	ctx := context.Background()
	brokers := []models.Broker{{ID: 1, Hostname: "kafka-1", Port: 9092}}

	if err := m.Insert(ctx, "prod", brokers); err == nil {
		t.Fatal("Expected error on append failure, got nil")
	}
	log.SetAppendError(nil)

	if err := m.Insert(ctx, "prod", brokers); err != nil {
		t.Fatalf("Expected no error on retry, got %v", err)
	}
	if log.Len() != 1 {
		t.Fatalf("Expected retried value in the log, got %d records", log.Len())
	}

	if err := m.Insert(ctx, "prod", brokers); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if log.Len() != 1 {
		t.Errorf("Expected replicated value not to be appended again, got %d records", log.Len())
	}

	rebuilt := NewCache(NewMockReplicationLog(), zap.NewNop())
	records, _ := log.ReplayAll(ctx)
	for _, rec := range records {
		_, key, err := unwrapKey(rec.Key)
		if err != nil {
			t.Fatalf("Expected valid key, got %v", err)
		}
		if err := rebuilt.Brokers.apply(key, rec.Value, rec.Time); err != nil {
			t.Fatalf("Expected no error applying record, got %v", err)
		}
	}
	if got, ok := rebuilt.Brokers.Get("prod"); !ok || !reflect.DeepEqual(got, brokers) {
		t.Errorf("Expected rebuilt cache to hold %v, got %v (present=%v)", brokers, got, ok)
	}
}

func TestGet_Missing(t *testing.T) {
	m := NewReplicatedMap[string, int]("counts", NewMockReplicationLog())

	if _, ok := m.Get("missing"); ok {
		t.Error("Expected missing key to be absent")
	}
}

func TestFilter(t *testing.T) {
	m := NewReplicatedMap[models.ClusterTopicKey, int]("topics", NewMockReplicationLog())
	ctx := context.Background()

	m.Insert(ctx, models.ClusterTopicKey{Cluster: "prod", Topic: "orders"}, 1)
	m.Insert(ctx, models.ClusterTopicKey{Cluster: "prod", Topic: "users"}, 2)
	m.Insert(ctx, models.ClusterTopicKey{Cluster: "staging", Topic: "orders"}, 3)

	prod := m.Filter(func(k models.ClusterTopicKey, _ int) bool { return k.Cluster == "prod" })
	if len(prod) != 2 {
		t.Errorf("Expected 2 prod entries, got %d", len(prod))
	}

	if all := m.Filter(nil); len(all) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(all))
	}

	if n := m.Count(func(_ models.ClusterTopicKey, v int) bool { return v > 1 }); n != 2 {
		t.Errorf("Expected count 2, got %d", n)
	}
}

func TestRemove_WritesTombstone(t *testing.T) {
	log := NewMockReplicationLog()
	m := NewReplicatedMap[string, int]("counts", log)
	ctx := context.Background()

	m.Insert(ctx, "a", 1)
	if err := m.Remove(ctx, "a"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, ok := m.Get("a"); ok {
		t.Error("Expected key to be removed")
	}
	if log.Len() != 2 {
		t.Fatalf("Expected 2 records, got %d", log.Len())
	}
	if log.Records[1].Value != nil {
		t.Errorf("Expected tombstone, got %s", log.Records[1].Value)
	}
}

func TestRemoveExpired_LocalOnly(t *testing.T) {
	log := NewMockReplicationLog()
	m := NewReplicatedMap[string, int]("counts", log)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	m.Insert(ctx, "old", 1)
	clock = clock.Add(10 * time.Minute)
	m.Insert(ctx, "fresh", 2)

	removed := m.RemoveExpired(5 * time.Minute)
	if removed != 1 {
		t.Errorf("Expected 1 removed entry, got %d", removed)
	}
	if _, ok := m.Get("old"); ok {
		t.Error("Expected old entry to expire")
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Error("Expected fresh entry to survive")
	}
	if log.Len() != 2 {
		t.Errorf("Expected no tombstone for expiry, got %d records", log.Len())
	}
}

func TestReplay_RebuildsFinalState(t *testing.T) {
	log := NewMockReplicationLog()
	original := NewReplicatedMap[models.GroupTopicKey, []int64]("offsets", log)
	ctx := context.Background()

	k1 := models.GroupTopicKey{Cluster: "prod", Group: "billing", Topic: "orders"}
	k2 := models.GroupTopicKey{Cluster: "prod", Group: "search", Topic: "orders"}
	original.Insert(ctx, k1, []int64{1, 2})
	original.Insert(ctx, k2, []int64{5})
	original.Insert(ctx, k1, []int64{3, 4, -1})
	original.Remove(ctx, k2)

	rebuilt := NewReplicatedMap[models.GroupTopicKey, []int64]("offsets", NewMockReplicationLog())
	records, _ := log.ReplayAll(ctx)
	for _, rec := range records {
		name, key, err := unwrapKey(rec.Key)
		if err != nil {
			t.Fatalf("Expected valid key, got %v", err)
		}
		if name != "offsets" {
			t.Fatalf("Expected cache name offsets, got %s", name)
		}
		if err := rebuilt.apply(key, rec.Value, rec.Time); err != nil {
			t.Fatalf("Expected no error applying record, got %v", err)
		}
	}

	if rebuilt.Len() != original.Len() {
		t.Fatalf("Expected %d entries, got %d", original.Len(), rebuilt.Len())
	}
	for _, key := range original.Keys() {
		want, _ := original.Get(key)
		got, ok := rebuilt.Get(key)
		if !ok || !reflect.DeepEqual(want, got) {
			t.Errorf("Expected %v for %v, got %v", want, key, got)
		}
	}
}

func TestApply_UsesRecordTime(t *testing.T) {
	m := NewReplicatedMap[string, int]("counts", NewMockReplicationLog())
	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := m.apply([]byte(`"a"`), []byte(`4`), at); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	entry, ok := m.Entry("a")
	if !ok {
		t.Fatal("Expected entry to exist")
	}
	if !entry.Updated.Equal(at) {
		t.Errorf("Expected updated %v, got %v", at, entry.Updated)
	}
}

func TestApply_MalformedValue(t *testing.T) {
	m := NewReplicatedMap[string, int]("counts", NewMockReplicationLog())

	if err := m.apply([]byte(`"a"`), []byte(`"not a number"`), time.Now()); err == nil {
		t.Error("Expected decode error, got nil")
	}
	if m.Len() != 0 {
		t.Errorf("Expected empty map, got %d entries", m.Len())
	}
}

func TestUnwrapKey_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `["only-one"]`, `{"a":1}`} {
		if _, _, err := unwrapKey([]byte(raw)); err == nil {
			t.Errorf("Expected error for %s, got nil", raw)
		}
	}
}

func TestConcurrentInserts(t *testing.T) {
	log := NewMockReplicationLog()
	m := NewReplicatedMap[string, int]("counts", log)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Insert(ctx, fmt.Sprintf("key-%d", i%10), i)
			m.Get(fmt.Sprintf("key-%d", i%10))
		}(i)
	}
	wg.Wait()

	if m.Len() != 10 {
		t.Errorf("Expected 10 keys, got %d", m.Len())
	}
	if log.Len() == 0 {
		t.Error("Expected appends to the log")
	}
}
