package kafka

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/segmentio/kafka-go"
)

// ClusterMetadata is the broker list and topic layout of a cluster at one instant.
type ClusterMetadata struct {
	Brokers []models.Broker
	Topics  map[string][]models.Partition
}

// MetadataSource answers the metadata and group queries of one cluster.
type MetadataSource interface {
	FetchMetadata(ctx context.Context) (*ClusterMetadata, error)
	FetchGroups(ctx context.Context, brokers []models.Broker) ([]models.Group, error)
}

// Admin wraps Kafka admin operations
type Admin struct {
	client *kafka.Client
}

// NewAdmin creates a new Kafka admin client
func NewAdmin(brokers []string, timeout time.Duration) (*Admin, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers provided")
	}

	return &Admin{
		client: &kafka.Client{
			Addr:    kafka.TCP(brokers...),
			Timeout: timeout,
		},
	}, nil
}

// FetchMetadata retrieves brokers and the partition layout of every topic
func (a *Admin) FetchMetadata(ctx context.Context) (*ClusterMetadata, error) {
	resp, err := a.client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}

	md := &ClusterMetadata{
		Brokers: make([]models.Broker, 0, len(resp.Brokers)),
		Topics:  make(map[string][]models.Partition, len(resp.Topics)),
	}

	for _, b := range resp.Brokers {
		md.Brokers = append(md.Brokers, models.Broker{
			ID:       int32(b.ID),
			Hostname: b.Host,
			Port:     int32(b.Port),
		})
	}
	sort.Slice(md.Brokers, func(i, j int) bool { return md.Brokers[i].ID < md.Brokers[j].ID })

	for _, topic := range resp.Topics {
		// a topic being created or deleted reports an error and no layout
		if topic.Error != nil && len(topic.Partitions) == 0 {
			continue
		}

		partitions := make([]models.Partition, 0, len(topic.Partitions))
		for _, p := range topic.Partitions {
			partition := models.Partition{
				ID:       int32(p.ID),
				Leader:   int32(p.Leader.ID),
				Replicas: brokerIDs(p.Replicas),
				ISR:      brokerIDs(p.Isr),
			}
			if p.Error != nil {
				partition.Error = p.Error.Error()
			}
			partitions = append(partitions, partition)
		}
		md.Topics[topic.Name] = partitions
	}

	return md, nil
}

// FetchGroups lists the groups coordinated by each broker and describes them
// on that same broker.
func (a *Admin) FetchGroups(ctx context.Context, brokers []models.Broker) ([]models.Group, error) {
	var groups []models.Group

	for _, broker := range brokers {
		addr := kafka.TCP(net.JoinHostPort(broker.Hostname, strconv.Itoa(int(broker.Port))))

		listed, err := a.client.ListGroups(ctx, &kafka.ListGroupsRequest{Addr: addr})
		if err != nil {
			return nil, fmt.Errorf("failed to list groups on broker %d: %w", broker.ID, err)
		}
		if listed.Error != nil {
			return nil, fmt.Errorf("failed to list groups on broker %d: %w", broker.ID, listed.Error)
		}
		if len(listed.Groups) == 0 {
			continue
		}

		ids := make([]string, 0, len(listed.Groups))
		for _, g := range listed.Groups {
			ids = append(ids, g.GroupID)
		}

		described, err := a.client.DescribeGroups(ctx, &kafka.DescribeGroupsRequest{Addr: addr, GroupIDs: ids})
		if err != nil {
			return nil, fmt.Errorf("failed to describe groups on broker %d: %w", broker.ID, err)
		}

		for _, g := range described.Groups {
			if g.Error != nil {
				return nil, fmt.Errorf("failed to describe group %s: %w", g.GroupID, g.Error)
			}

			group := models.Group{
				Name:    g.GroupID,
				State:   g.GroupState,
				Members: make([]models.Member, 0, len(g.Members)),
			}
			for _, m := range g.Members {
				group.Members = append(group.Members, models.Member{
					ID:         m.MemberID,
					ClientID:   m.ClientID,
					ClientHost: m.ClientHost,
				})
			}
			groups = append(groups, group)
		}
	}

	return groups, nil
}

func brokerIDs(brokers []kafka.Broker) []int32 {
	ids := make([]int32, 0, len(brokers))
	for _, b := range brokers {
		ids = append(ids, int32(b.ID))
	}
	return ids
}
