package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/models"
	"github.com/fede1024/kafka-view-sub000/core/telemetry"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const (
	DefaultIdleTimeout   = 20 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// Message is one record returned by a live poll.
type Message struct {
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       string    `json:"key,omitempty"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID       int64            `json:"id"`
	Cluster  models.ClusterID `json:"cluster"`
	Topic    string           `json:"topic"`
	Created  time.Time        `json:"created"`
	LastPoll time.Time        `json:"last_poll"`
}

type session struct {
	id      int64
	cluster models.ClusterID
	topic   string
	created time.Time

	// lastPoll holds unix nanoseconds so the sweep never waits on a poll.
	lastPoll atomic.Int64

	// mu serializes polls on the consumer.
	mu       sync.Mutex
	consumer Consumer
	closed   bool
}

func (s *session) touch(now time.Time) {
	s.lastPoll.Store(now.UnixNano())
}

func (s *session) lastPolled() time.Time {
	return time.Unix(0, s.lastPoll.Load())
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:       s.id,
		Cluster:  s.cluster,
		Topic:    s.topic,
		Created:  s.created,
		LastPoll: s.lastPolled(),
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.consumer.Close()
		s.closed = true
	}
}

// Pool keeps the consumers backing live tailing sessions, keyed by a
// caller supplied id. Sessions idle for longer than the idle timeout are
// closed by Sweep.
type Pool struct {
	factory     ConsumerFactory
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[int64]*session
}

func NewPool(factory ConsumerFactory, idleTimeout time.Duration, logger *zap.Logger) *Pool {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Pool{
		factory:     factory,
		idleTimeout: idleTimeout,
		logger:      logger.Named("live"),
		now:         time.Now,
		sessions:    make(map[int64]*session),
	}
}

// GetOrCreate returns the session registered under id, creating a consumer on
// cluster and topic if there is none. An existing session keeps the cluster
// and topic it was created with.
func (p *Pool) GetOrCreate(id int64, cluster *config.ClusterConfig, topic string) (SessionInfo, error) {
	s, err := p.getOrCreate(id, cluster, topic)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(), nil
}

func (p *Pool) getOrCreate(id int64, cluster *config.ClusterConfig, topic string) (*session, error) {
	p.mu.RLock()
	s, ok := p.sessions[id]
	p.mu.RUnlock()
	if ok {
		return s, nil
	}

	consumer, err := p.factory.NewConsumer(cluster, topic)
	if err != nil {
		return nil, err
	}

	now := p.now()
	created := &session{
		id:       id,
		cluster:  cluster.ID,
		topic:    topic,
		created:  now,
		consumer: consumer,
	}
	created.touch(now)

	p.mu.Lock()
	if existing, ok := p.sessions[id]; ok {
		p.mu.Unlock()
		consumer.Close()
		return existing, nil
	}
	p.sessions[id] = created
	size := len(p.sessions)
	p.mu.Unlock()

	telemetry.LiveSessions.Set(float64(size))
	p.logger.Info("Live consumer created",
		zap.Int64("session", id),
		zap.String("cluster", string(cluster.ID)),
		zap.String("topic", topic))
	return created, nil
}

// Poll returns at most maxMessages records of session id, waiting no longer than
// timeout. The session is created first when it does not exist.
func (p *Pool) Poll(ctx context.Context, id int64, cluster *config.ClusterConfig, topic string, maxMessages int, timeout time.Duration) ([]Message, error) {
	if maxMessages <= 0 {
		return nil, fmt.Errorf("live session %d: max messages must be positive, got %d", id, maxMessages)
	}

	s, err := p.getOrCreate(id, cluster, topic)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("live session %d was closed", id)
	}

	s.touch(p.now())

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := s.consumer.PollRecords(pollCtx, maxMessages)
	s.touch(p.now())

	if fetches.IsClientClosed() {
		return nil, fmt.Errorf("live session %d: %w", id, kgo.ErrClientClosed)
	}

	var errs []error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		errs = append(errs, fmt.Errorf("%s/%d: %w", topic, partition, err))
	})

	records := fetches.Records()
	if len(records) > maxMessages {
		records = records[:maxMessages]
	}
	messages := make([]Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, Message{
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       string(r.Key),
			Payload:   string(r.Value),
			Timestamp: r.Timestamp,
		})
	}

	if len(messages) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("live session %d: %w", id, errors.Join(errs...))
	}
	return messages, nil
}

// Sweep closes every session whose last poll is older than the idle timeout
// and returns how many were removed.
func (p *Pool) Sweep() int {
	cutoff := p.now().Add(-p.idleTimeout)

	p.mu.Lock()
	var expired []*session
	for id, s := range p.sessions {
		if s.lastPolled().Before(cutoff) {
			expired = append(expired, s)
			delete(p.sessions, id)
		}
	}
	size := len(p.sessions)
	p.mu.Unlock()

	for _, s := range expired {
		s.close()
		p.logger.Info("Live consumer removed after idle timeout", zap.Int64("session", s.id))
	}
	telemetry.LiveSessions.Set(float64(size))
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done.
func (p *Pool) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Sessions lists the open sessions ordered by id.
func (p *Pool) Sessions() []SessionInfo {
	p.mu.RLock()
	sessions := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (p *Pool) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[int64]*session)
	p.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	telemetry.LiveSessions.Set(0)
}
