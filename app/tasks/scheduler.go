package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/birdbrain-relay/app/coordinator"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)
var _ coordinator.RefreshRequester = (*Scheduler)(nil)

const (
	DefaultInterval = 5 * time.Minute

	taskQueueSize = 32
	taskTimeout   = 5 * time.Minute
	maxTimings    = 100
)

type Stats struct {
	CurrentWorkers     int           `json:"current_workers"`
	QueueSize          int           `json:"queue_size"`
	TotalProcessed     int64         `json:"total_processed"`
	TotalErrors        int64         `json:"total_errors"`
	LastProcessedAt    *time.Time    `json:"last_processed_at,omitempty"`
	AverageProcessTime time.Duration `json:"average_process_time"`

	processTimes []time.Duration
}

type Scheduler struct {
	refresher   Refresher
	interval    time.Duration
	workerCount int
	install     bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
	mu          sync.Mutex
	stats       *Stats
}

// NewScheduler builds the refresh scheduler. install marks the first run after the store was
// created, which adds an install-triggered refresh ahead of the startup one.
func NewScheduler(refresher Refresher, interval time.Duration, workerCount int, install bool) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = DefaultInterval
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	return &Scheduler{
		refresher:   refresher,
		interval:    interval,
		workerCount: workerCount,
		install:     install,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, taskQueueSize),
		stats:       &Stats{CurrentWorkers: workerCount},
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

// Stop abandons queued and in-flight tasks.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) RequestRefresh(trigger coordinator.Trigger) error {
	return s.EnqueueTask(NewRefreshIncompleteTask(trigger, s.refresher))
}

func (s *Scheduler) enqueueStartupTasks() {
	if s.install {
		if err := s.RequestRefresh(coordinator.TriggerInstall); err != nil {
			slog.Warn("Failed to enqueue RefreshIncompleteTask", "trigger", coordinator.TriggerInstall, "error", err)
		}
	}

	if err := s.RequestRefresh(coordinator.TriggerStartup); err != nil {
		slog.Warn("Failed to enqueue RefreshIncompleteTask", "trigger", coordinator.TriggerStartup, "error", err)
	}
}

func (s *Scheduler) enqueueTasks() {
	if err := s.RequestRefresh(coordinator.TriggerInterval); err != nil {
		slog.Warn("Failed to enqueue RefreshIncompleteTask", "trigger", coordinator.TriggerInterval, "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	s.recordResult(task.GetDuration(), err)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "trigger", task.GetTrigger(), "error", err)
	}
}

func (s *Scheduler) recordResult(duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.stats.TotalProcessed++
	if err != nil {
		s.stats.TotalErrors++
	}
	s.stats.LastProcessedAt = &now

	s.stats.processTimes = append(s.stats.processTimes, duration)
	if len(s.stats.processTimes) > maxTimings {
		s.stats.processTimes = s.stats.processTimes[len(s.stats.processTimes)-maxTimings:]
	}
	s.updateAverageProcessTime()
}

// updateAverageProcessTime must be called with mu held.
func (s *Scheduler) updateAverageProcessTime() {
	if len(s.stats.processTimes) == 0 {
		s.stats.AverageProcessTime = 0
		return
	}

	var total time.Duration
	for _, d := range s.stats.processTimes {
		total += d
	}
	s.stats.AverageProcessTime = total / time.Duration(len(s.stats.processTimes))
}

func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := *s.stats
	stats.processTimes = nil
	stats.QueueSize = len(s.taskQueue)
	return stats
}

func (s *Scheduler) Health() map[string]any {
	stats := s.GetStats()

	errorRate := 0.0
	if stats.TotalProcessed > 0 {
		errorRate = float64(stats.TotalErrors) / float64(stats.TotalProcessed)
	}

	status := "healthy"
	switch {
	case errorRate > 0.5:
		status = "unhealthy"
	case errorRate > 0.1:
		status = "degraded"
	}

	return map[string]any{
		"status":          status,
		"workers":         stats.CurrentWorkers,
		"queue_size":      stats.QueueSize,
		"total_processed": stats.TotalProcessed,
		"total_errors":    stats.TotalErrors,
		"error_rate":      errorRate,
	}
}
