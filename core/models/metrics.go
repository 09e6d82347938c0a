package models

// TotalTopic is the reserved topic name holding the broker-wide aggregate.
const TotalTopic = "__TOTAL__"

// UnknownRate marks a rate that the metrics endpoint did not report.
const UnknownRate = -1.0

// TopicRates holds fifteen minute moving averages for one topic.
type TopicRates struct {
	ByteRate float64 `json:"byte_rate"`
	MsgRate  float64 `json:"msg_rate"`
}

// BrokerMetrics is the per-topic throughput reported by a single broker.
type BrokerMetrics struct {
	Topics map[string]TopicRates `json:"topics"`
}

func NewBrokerMetrics() BrokerMetrics {
	return BrokerMetrics{Topics: make(map[string]TopicRates)}
}
