package out

import (
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
)

type Cluster struct {
	ID             models.ClusterID `json:"id"`
	BrokerList     []string         `json:"broker_list"`
	BrokerCount    int              `json:"broker_count"`
	TopicCount     int              `json:"topic_count"`
	GroupCount     int              `json:"group_count"`
	MetricsEnabled bool             `json:"metrics_enabled"`
	TailingEnabled bool             `json:"tailing_enabled"`
}

type Broker struct {
	ID       int32   `json:"id"`
	Hostname string  `json:"hostname"`
	Port     int32   `json:"port"`
	ByteRate float64 `json:"byte_rate"`
	MsgRate  float64 `json:"msg_rate"`
}

type Topic struct {
	Name       string  `json:"name"`
	Partitions int     `json:"partitions"`
	Errors     string  `json:"errors,omitempty"`
	ByteRate   float64 `json:"byte_rate"`
	MsgRate    float64 `json:"msg_rate"`
}

type Group struct {
	Name    string   `json:"name"`
	State   string   `json:"state"`
	Members int      `json:"members"`
	Topics  []string `json:"topics"`
}

type TopicOffsets struct {
	Topic      string                `json:"topic"`
	TotalLag   int64                 `json:"total_lag"`
	Partitions []models.PartitionLag `json:"partitions"`
}

type TailedMessage struct {
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Payload   string    `json:"payload"`
}

type CacheEntry struct {
	Key     string    `json:"key"`
	Value   any       `json:"value"`
	Updated time.Time `json:"updated"`
}
