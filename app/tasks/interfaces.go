package tasks

import (
	"github.com/lysyi3m/birdbrain-relay/app/coordinator"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the control API to drive cache refreshes.
// Example usage:
//
//	scheduler := NewScheduler(coord, 5*time.Minute, 2, fresh)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.RequestRefresh(coordinator.TriggerManual)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	RequestRefresh(trigger coordinator.Trigger) error
	GetStats() Stats
	Health() map[string]any
}
