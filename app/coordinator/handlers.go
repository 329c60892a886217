package coordinator

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/birdbrain-relay/app/messaging"
)

// RefreshRequester queues a refresh without running it on the caller's goroutine.
type RefreshRequester interface {
	RequestRefresh(trigger Trigger) error
}

// Register installs the coordinator's message handlers on the bus.
func (c *Coordinator) Register(bus *messaging.Bus, refresher RefreshRequester) {
	bus.Handle(messaging.TypeCheckIncomplete, c.handleCheckIncomplete)
	bus.Handle(messaging.TypeHydrationSuccess, c.handleHydrationSuccess)
	bus.Handle(messaging.TypeRefreshIncomplete, func(_ context.Context, msg messaging.Message) (messaging.Reply, error) {
		if err := refresher.RequestRefresh(TriggerMessage); err != nil {
			slog.Warn("Failed to queue refresh", "message_id", msg.ID, "error", err)
		}
		return messaging.Reply{}, nil
	})
}

func (c *Coordinator) handleCheckIncomplete(_ context.Context, msg messaging.Message) (messaging.Reply, error) {
	rec, ok := c.Lookup(msg.TweetID)
	if !ok {
		return messaging.Reply{IsIncomplete: false}, nil
	}
	return messaging.Reply{IsIncomplete: true, Data: &rec}, nil
}

func (c *Coordinator) handleHydrationSuccess(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	if err := c.Evict(ctx, msg.TweetID); err != nil {
		slog.Error("Failed to evict hydrated tweet", "rest_id", msg.TweetID, "error", err)
	}
	return messaging.Reply{}, nil
}
