package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/models"
)

const (
	ByteRateFilter = "kafka.server:name=BytesInPerSec,*,type=BrokerTopicMetrics/FifteenMinuteRate"
	MsgRateFilter  = "kafka.server:name=MessagesInPerSec,*,type=BrokerTopicMetrics/FifteenMinuteRate"
)

var topicPattern = regexp.MustCompile(`topic=([^,]+),`)

// RateSource reads topic keyed rates from a broker metrics endpoint.
type RateSource interface {
	Rates(ctx context.Context, host string, port int, filter string) (map[string]float64, error)
}

// JolokiaClient queries the Jolokia agent running next to each broker.
type JolokiaClient struct {
	client *http.Client
}

func NewJolokiaClient(timeout time.Duration) *JolokiaClient {
	return &JolokiaClient{
		client: &http.Client{Timeout: timeout},
	}
}

func jolokiaURL(host string, port int, filter string) string {
	return fmt.Sprintf("http://%s/jolokia/read/%s?ignoreErrors=true&includeStackTrace=false&maxCollectionSize=0",
		net.JoinHostPort(host, strconv.Itoa(port)), filter)
}

// Rates returns the FifteenMinuteRate of every bean matched by filter, keyed by topic.
func (c *JolokiaClient) Rates(ctx context.Context, host string, port int, filter string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jolokiaURL(host, port, filter), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics response: %w", err)
	}

	return ParseRates(body)
}

// ParseRates decodes a Jolokia read response. Beans without a topic component
// are reported under models.TotalTopic.
func ParseRates(body []byte) (map[string]float64, error) {
	var decoded struct {
		Status int                                   `json:"status"`
		Error  string                                `json:"error"`
		Value  map[string]map[string]json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("malformed metrics response: %w", err)
	}
	if decoded.Status != 0 && decoded.Status != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned status %d: %s", decoded.Status, decoded.Error)
	}

	rates := make(map[string]float64, len(decoded.Value))
	for bean, attributes := range decoded.Value {
		raw, ok := attributes["FifteenMinuteRate"]
		if !ok {
			continue
		}
		var rate float64
		if err := json.Unmarshal(raw, &rate); err != nil {
			continue
		}

		topic := models.TotalTopic
		if match := topicPattern.FindStringSubmatch(bean); match != nil {
			topic = match[1]
		}
		rates[topic] = rate
	}

	return rates, nil
}
