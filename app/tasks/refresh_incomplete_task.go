package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/birdbrain-relay/app/coordinator"
)

// Refresher is implemented by coordinator.Coordinator.
type Refresher interface {
	Refresh(ctx context.Context, trigger coordinator.Trigger) error
}

// RefreshIncompleteTask runs one cache refresh. A failed refresh is not retried; the next
// trigger is the retry.
type RefreshIncompleteTask struct {
	Task
	refresher Refresher
}

func NewRefreshIncompleteTask(trigger coordinator.Trigger, refresher Refresher) *RefreshIncompleteTask {
	return &RefreshIncompleteTask{
		Task:      NewTask(TaskTypeRefreshIncomplete, trigger),
		refresher: refresher,
	}
}

func (t *RefreshIncompleteTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.refresher.Refresh(ctx, t.Trigger); err != nil {
		return fmt.Errorf("failed to refresh incomplete cache: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"trigger", t.Trigger,
		"duration", t.GetDuration())

	return nil
}
