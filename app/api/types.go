package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lysyi3m/birdbrain-relay/app/capture"
	"github.com/lysyi3m/birdbrain-relay/app/coordinator"
	"github.com/lysyi3m/birdbrain-relay/app/messaging"
	"github.com/lysyi3m/birdbrain-relay/app/store"
	"github.com/lysyi3m/birdbrain-relay/app/tasks"
)

// CacheInterface is the read side of the coordinator.
type CacheInterface interface {
	Snapshot() map[string]store.Record
	Stats() coordinator.Stats
}

// MessengerInterface is the bus as seen by out-of-process relays.
type MessengerInterface interface {
	Request(ctx context.Context, msg messaging.Message) (messaging.Reply, error)
	Notify(msg messaging.Message)
}

type NavigatorInterface interface {
	Navigate(location string)
}

type ListenerInterface interface {
	Subscribe() chan messaging.Message
	Unsubscribe(ch chan messaging.Message)
	Count() int
}

var _ CacheInterface = (*coordinator.Coordinator)(nil)
var _ MessengerInterface = (*messaging.Bus)(nil)
var _ ListenerInterface = (*messaging.Hub)(nil)

type Handler struct {
	cache     CacheInterface
	scheduler tasks.TaskSchedulerInterface
	bus       MessengerInterface
	publisher capture.Publisher
	navigator NavigatorInterface
	listeners ListenerInterface
	proxy     http.Handler
	version   string
}

const (
	TransportFetch    = "fetch"
	TransportExchange = "exchange"
)

type CaptureRequest struct {
	URL       string          `json:"url" binding:"required"`
	Transport string          `json:"transport"`
	Body      json.RawMessage `json:"body" binding:"required"`
}

type PageRequest struct {
	Location string `json:"location" binding:"required"`
}
