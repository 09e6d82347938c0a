package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/telemetry"
	"go.uber.org/zap"
)

// Task is one idempotent unit of periodic work.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type State int32

const (
	Idle State = iota
	Running
	Sleeping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Scheduler runs its tasks one at a time in strict rotation. After each run it
// sleeps period/n minus the run time, so every task runs once per period
// whatever the number of tasks.
type Scheduler struct {
	name   string
	period time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	ids   []string
	tasks map[string]Task

	state    atomic.Int32
	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	initialDelay time.Duration
	idleDelay    time.Duration
}

func New(name string, period time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		name:         name,
		period:       period,
		logger:       logger.Named("scheduler").With(zap.String("scheduler", name)),
		tasks:        make(map[string]Task),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		initialDelay: 100 * time.Millisecond,
		idleDelay:    time.Second,
	}
}

// Add registers task under id. An existing id keeps its rotation slot and
// gets the new task.
func (s *Scheduler) Add(id string, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		s.ids = append(s.ids, id)
	}
	s.tasks[id] = task
}

// TaskIDs returns the registered ids in rotation order.
func (s *Scheduler) TaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start launches the rotation goroutine. It ends when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.started.Store(true)
	s.logger.Info("Starting scheduler", zap.Duration("period", s.period), zap.Int("tasks", len(s.TaskIDs())))
	go s.loop(ctx)
}

// Stop asks the rotation to end and waits for the task in flight to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if !s.started.Load() {
		s.state.Store(int32(Stopped))
		return
	}
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.state.Store(int32(Stopped))

	if !s.sleep(ctx, s.initialDelay) {
		return
	}

	index := 0
	for {
		id, task, n := s.next(&index)
		if n == 0 {
			if !s.sleep(ctx, s.idleDelay) {
				return
			}
			continue
		}

		s.state.Store(int32(Running))
		start := time.Now()
		s.runTask(ctx, id, task)
		elapsed := time.Since(start)

		interval := s.period/time.Duration(n) - elapsed
		if interval < 0 {
			interval = 0
		}
		if !s.sleep(ctx, interval) {
			return
		}
	}
}

func (s *Scheduler) next(index *int) (string, Task, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.ids)
	if n == 0 {
		return "", nil, 0
	}
	if *index >= n {
		*index = 0
	}
	id := s.ids[*index]
	*index++
	return id, s.tasks[id], n
}

// sleep returns false when the scheduler has to stop.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	s.state.Store(int32(Sleeping))

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) runTask(ctx context.Context, id string, task Task) {
	start := time.Now()
	defer func() {
		telemetry.TaskDuration.WithLabelValues(s.name, id).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			telemetry.TaskFailures.WithLabelValues(s.name, id).Inc()
			s.logger.Error("Task panicked", zap.String("task", id), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := task.Run(ctx); err != nil {
		telemetry.TaskFailures.WithLabelValues(s.name, id).Inc()
		s.logger.Error("Task failed", zap.String("task", id), zap.Error(err))
		return
	}
	s.logger.Debug("Task completed", zap.String("task", id), zap.Duration("elapsed", time.Since(start)))
}
