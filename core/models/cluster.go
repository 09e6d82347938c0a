package models

import "fmt"

// ClusterID identifies a monitored cluster. It is the first component of every cache key.
type ClusterID string

// ClusterTopicKey addresses a topic inside a cluster.
type ClusterTopicKey struct {
	Cluster ClusterID `json:"cluster"`
	Topic   string    `json:"topic"`
}

func (k ClusterTopicKey) String() string {
	return fmt.Sprintf("%s/%s", k.Cluster, k.Topic)
}

// ClusterGroupKey addresses a consumer group inside a cluster.
type ClusterGroupKey struct {
	Cluster ClusterID `json:"cluster"`
	Group   string    `json:"group"`
}

func (k ClusterGroupKey) String() string {
	return fmt.Sprintf("%s/%s", k.Cluster, k.Group)
}

// BrokerKey addresses a single broker inside a cluster.
type BrokerKey struct {
	Cluster  ClusterID `json:"cluster"`
	BrokerID int32     `json:"broker_id"`
}

func (k BrokerKey) String() string {
	return fmt.Sprintf("%s/%d", k.Cluster, k.BrokerID)
}

// GroupTopicKey addresses the committed offsets of one group on one topic.
type GroupTopicKey struct {
	Cluster ClusterID `json:"cluster"`
	Group   string    `json:"group"`
	Topic   string    `json:"topic"`
}

func (k GroupTopicKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Cluster, k.Group, k.Topic)
}
