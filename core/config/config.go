package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
	"gopkg.in/yaml.v3"
)

type ClusterConfig struct {
	ID            models.ClusterID `yaml:"-" json:"id"`
	BrokerList    []string         `yaml:"broker_list" json:"broker_list"`
	Zookeeper     string           `yaml:"zookeeper" json:"zookeeper,omitempty"`
	JolokiaPort   int              `yaml:"jolokia_port" json:"jolokia_port,omitempty"`
	EnableTailing bool             `yaml:"enable_tailing" json:"enable_tailing"`
}

// BootstrapServers returns the broker list in the comma separated form clients expect.
func (c *ClusterConfig) BootstrapServers() string {
	return strings.Join(c.BrokerList, ",")
}

// CachingConfig points at the cluster and compacted topic backing the replicated caches.
type CachingConfig struct {
	Cluster           models.ClusterID `yaml:"cluster" json:"cluster"`
	Topic             string           `yaml:"topic" json:"topic"`
	Partitions        int              `yaml:"partitions" json:"partitions"`
	ReplicationFactor int              `yaml:"replication_factor" json:"replication_factor"`
}

type HttpServerConfig struct {
	Port string `json:"port"`
	Host string `json:"host"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// RefreshConfig holds the periods of the background activities.
type RefreshConfig struct {
	Metadata       time.Duration `yaml:"metadata_refresh" json:"metadata_refresh"`
	Metrics        time.Duration `yaml:"metrics_refresh" json:"metrics_refresh"`
	OffsetsFlush   time.Duration `yaml:"offsets_flush" json:"offsets_flush"`
	ExpirySweep    time.Duration `yaml:"expiry_sweep" json:"expiry_sweep"`
	MetricsWorkers int           `yaml:"metrics_workers" json:"metrics_workers"`
}

// TTLConfig holds the maximum age of entries per family of caches.
type TTLConfig struct {
	Metadata time.Duration `yaml:"metadata_ttl" json:"metadata_ttl"`
	Metrics  time.Duration `yaml:"metrics_ttl" json:"metrics_ttl"`
	Offsets  time.Duration `yaml:"offsets_ttl" json:"offsets_ttl"`
}

type Config struct {
	Server  HttpServerConfig `yaml:"-" json:"server"`
	Logging LoggingConfig    `yaml:"-" json:"logging"`
	Path    string           `yaml:"-" json:"path"`

	Clusters               map[models.ClusterID]*ClusterConfig `yaml:"clusters" json:"clusters"`
	Caching                CachingConfig                       `yaml:"caching" json:"caching"`
	Refresh                RefreshConfig                       `yaml:",inline" json:"refresh"`
	TTL                    TTLConfig                           `yaml:",inline" json:"ttl"`
	ConsumerOffsetsGroupID string                              `yaml:"consumer_offsets_group_id" json:"consumer_offsets_group_id"`
}

// Cluster looks up a configured cluster.
func (c *Config) Cluster(id models.ClusterID) (*ClusterConfig, bool) {
	cluster, ok := c.Clusters[id]
	return cluster, ok
}

// ClusterIDs returns the configured cluster ids in a stable order.
func (c *Config) ClusterIDs() []models.ClusterID {
	ids := make([]models.ClusterID, 0, len(c.Clusters))
	for id := range c.Clusters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func getStringEnvOr(key, fallback string) string {
	if envVar, exists := os.LookupEnv(key); exists {
		return envVar
	}
	return fallback
}

func getIntEnvOr(key string, fallback int) int {
	if envVar, exists := os.LookupEnv(key); exists {
		if intVar, err := strconv.Atoi(envVar); err == nil {
			return intVar
		}
	}
	return fallback
}

// Load reads the process settings from the environment and the cluster
// definitions from the file named by KAFKA_VIEW_CONFIG.
func Load() (*Config, error) {
	path := getStringEnvOr("KAFKA_VIEW_CONFIG", "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	cfg.Path = path
	cfg.Server = HttpServerConfig{
		Port: getStringEnvOr("KAFKA_VIEW_SERVER_PORT", "8080"),
		Host: getStringEnvOr("KAFKA_VIEW_SERVER_HOST", "0.0.0.0"),
	}
	cfg.Logging = LoggingConfig{
		Level:  getStringEnvOr("KAFKA_VIEW_LOG_LEVEL", "info"),
		Format: getStringEnvOr("KAFKA_VIEW_LOG_FORMAT", "json"),
	}
	if workers := getIntEnvOr("KAFKA_VIEW_METRICS_WORKERS", 0); workers > 0 {
		cfg.Refresh.MetricsWorkers = workers
	}

	return cfg, nil
}

// Parse decodes a cluster file, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	for id, cluster := range c.Clusters {
		if cluster == nil {
			cluster = &ClusterConfig{}
			c.Clusters[id] = cluster
		}
		cluster.ID = id
	}
	if c.Caching.Topic == "" {
		c.Caching.Topic = "__kafka_view_cache"
	}
	if c.Caching.Partitions <= 0 {
		c.Caching.Partitions = 3
	}
	if c.Caching.ReplicationFactor <= 0 {
		c.Caching.ReplicationFactor = 1
	}
	if c.Refresh.Metadata <= 0 {
		c.Refresh.Metadata = 60 * time.Second
	}
	if c.Refresh.Metrics <= 0 {
		c.Refresh.Metrics = 60 * time.Second
	}
	if c.Refresh.OffsetsFlush <= 0 {
		c.Refresh.OffsetsFlush = 10 * time.Second
	}
	if c.Refresh.ExpirySweep <= 0 {
		c.Refresh.ExpirySweep = 2 * time.Minute
	}
	if c.Refresh.MetricsWorkers <= 0 {
		c.Refresh.MetricsWorkers = 8
	}
	if c.TTL.Metadata <= 0 {
		c.TTL.Metadata = 10 * time.Minute
	}
	if c.TTL.Metrics <= 0 {
		c.TTL.Metrics = 10 * time.Minute
	}
	if c.TTL.Offsets <= 0 {
		c.TTL.Offsets = 7 * 24 * time.Hour
	}
	if c.ConsumerOffsetsGroupID == "" {
		c.ConsumerOffsetsGroupID = "kafka_view_consumer"
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if len(c.Clusters) == 0 {
		return fmt.Errorf("no clusters defined")
	}
	for _, id := range c.ClusterIDs() {
		if len(c.Clusters[id].BrokerList) == 0 {
			return fmt.Errorf("cluster %s: %w", id, models.ErrClusterBrokerRequired)
		}
	}
	if c.Caching.Cluster == "" {
		return fmt.Errorf("caching cluster is required")
	}
	if _, ok := c.Clusters[c.Caching.Cluster]; !ok {
		return fmt.Errorf("caching cluster %s: %w", c.Caching.Cluster, models.ErrClusterNotFound)
	}
	return nil
}
