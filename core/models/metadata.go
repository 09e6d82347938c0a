package models

// Broker is a broker as advertised by the cluster metadata.
type Broker struct {
	ID       int32  `json:"id"`
	Hostname string `json:"hostname"`
	Port     int32  `json:"port"`
}

// Partition describes the layout of one topic partition.
type Partition struct {
	ID       int32   `json:"id"`
	Leader   int32   `json:"leader"`
	Replicas []int32 `json:"replicas"`
	ISR      []int32 `json:"isr"`
	Error    string  `json:"error,omitempty"`
}

// Member is a consumer group member.
type Member struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	ClientHost string `json:"client_host"`
}

// Group is a consumer group as reported by the group coordinator.
type Group struct {
	Name    string   `json:"name"`
	State   string   `json:"state"`
	Members []Member `json:"members"`
}
