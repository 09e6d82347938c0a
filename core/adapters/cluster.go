package adapters

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fede1024/kafka-view-sub000/core/live"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"github.com/fede1024/kafka-view-sub000/core/wire/out"
)

// MaxPayloadChars is the length after which tailed payloads are cut.
const MaxPayloadChars = 1024

func BrokerToWire(broker models.Broker, metrics models.BrokerMetrics, ok bool) out.Broker {
	wire := out.Broker{
		ID:       broker.ID,
		Hostname: broker.Hostname,
		Port:     broker.Port,
		ByteRate: models.UnknownRate,
		MsgRate:  models.UnknownRate,
	}
	if !ok {
		return wire
	}
	if total, found := metrics.Topics[models.TotalTopic]; found {
		wire.ByteRate = total.ByteRate
		wire.MsgRate = total.MsgRate
	}
	return wire
}

func TopicToWire(name string, partitions []models.Partition, rates models.TopicRates, hasRates bool) out.Topic {
	var errs []string
	for _, p := range partitions {
		if p.Error != "" {
			errs = append(errs, p.Error)
		}
	}

	wire := out.Topic{
		Name:       name,
		Partitions: len(partitions),
		Errors:     strings.Join(errs, ","),
		ByteRate:   models.UnknownRate,
		MsgRate:    models.UnknownRate,
	}
	if hasRates {
		wire.ByteRate = rates.ByteRate
		wire.MsgRate = rates.MsgRate
	}
	return wire
}

func MessageToWire(message live.Message) out.TailedMessage {
	return out.TailedMessage{
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       message.Key,
		CreatedAt: message.Timestamp,
		Payload:   TruncatePayload(message.Payload),
	}
}

func MessagesToWire(messages []live.Message) []out.TailedMessage {
	wire := make([]out.TailedMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, MessageToWire(m))
	}
	return wire
}

// TruncatePayload keeps the first MaxPayloadChars characters of payload,
// marking a cut payload with a trailing "...".
func TruncatePayload(payload string) string {
	if utf8.RuneCountInString(payload) <= MaxPayloadChars {
		return payload
	}
	runes := []rune(payload)
	return string(runes[:MaxPayloadChars]) + "..."
}

// CacheEntriesToWire dumps every entry of m ordered by key.
func CacheEntriesToWire[K comparable, V any](m *store.ReplicatedMap[K, V]) []out.CacheEntry {
	kvs := m.Filter(nil)
	entries := make([]out.CacheEntry, 0, len(kvs))
	for _, kv := range kvs {
		entries = append(entries, out.CacheEntry{
			Key:     fmt.Sprint(kv.Key),
			Value:   kv.Value,
			Updated: kv.Updated,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}
