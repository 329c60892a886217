package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/birdbrain-relay/app/capture"
	"github.com/lysyi3m/birdbrain-relay/app/coordinator"
	"github.com/lysyi3m/birdbrain-relay/app/messaging"
	"github.com/lysyi3m/birdbrain-relay/app/store"
	"github.com/lysyi3m/birdbrain-relay/app/tasks"
)

const requestTimeout = 10 * time.Second

func NewHandler(cache CacheInterface, scheduler tasks.TaskSchedulerInterface, bus MessengerInterface,
	publisher capture.Publisher, navigator NavigatorInterface, listeners ListenerInterface, version string) *Handler {
	return &Handler{
		cache:     cache,
		scheduler: scheduler,
		bus:       bus,
		publisher: publisher,
		navigator: navigator,
		listeners: listeners,
		version:   version,
	}
}

// WithProxy mounts a capturing reverse proxy under /proxy.
func (h *Handler) WithProxy(proxy http.Handler) *Handler {
	h.proxy = proxy
	return h
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := h.scheduler.Health()
	health["timestamp"] = time.Now().In(time.Local).Format(time.RFC3339)
	health["incomplete"] = h.cache.Stats().Records
	health["listeners"] = h.listeners.Count()

	status := http.StatusOK
	if health["status"] == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":   h.version,
		"cache":     h.cache.Stats(),
		"scheduler": h.scheduler.GetStats(),
		"listeners": h.listeners.Count(),
	})
}

func (h *Handler) APIListIncomplete(c *gin.Context) {
	snapshot := h.cache.Snapshot()

	tweets := make([]store.Record, 0, len(snapshot))
	for _, rec := range snapshot {
		tweets = append(tweets, rec)
	}
	sort.Slice(tweets, func(i, j int) bool { return tweets[i].RestID < tweets[j].RestID })

	c.JSON(http.StatusOK, gin.H{
		"count":  len(tweets),
		"tweets": tweets,
	})
}

func (h *Handler) APIRefresh(c *gin.Context) {
	if err := h.scheduler.RequestRefresh(coordinator.TriggerManual); err != nil {
		slog.Error("Error enqueueing refresh task", "trigger", coordinator.TriggerManual, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue refresh task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Refresh enqueued",
		"trigger": coordinator.TriggerManual,
	})
}

// APIPostMessage lets a relay running outside this process speak the message protocol.
// CHECK_INCOMPLETE is answered inline; every other type is fire-and-forget.
func (h *Handler) APIPostMessage(c *gin.Context) {
	var msg messaging.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message", "details": err.Error()})
		return
	}
	if !knownType(msg.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown message type", "type": msg.Type})
		return
	}
	if msg.ID == "" {
		msg.ID = messaging.NewMessage(msg.Type).ID
	}

	if msg.Type != messaging.TypeCheckIncomplete {
		h.bus.Notify(msg)
		c.JSON(http.StatusAccepted, gin.H{"id": msg.ID, "type": msg.Type})
		return
	}

	if msg.TweetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tweetId is required for " + string(msg.Type)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reply, err := h.bus.Request(ctx, msg)
	if err != nil {
		slog.Error("Message request failed", "type", msg.Type, "tweet_id", msg.TweetID, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, messaging.ErrNoHandler) || errors.Is(err, messaging.ErrStopped) {
			status = http.StatusServiceUnavailable
		} else if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": "Message request failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, reply)
}

// APIPostCapture accepts a raw response seen by an external hook. It goes through the same
// match rules as in-process captures.
func (h *Handler) APIPostCapture(c *gin.Context) {
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid capture", "details": err.Error()})
		return
	}

	var categories []capture.Category
	switch req.Transport {
	case "", TransportFetch:
		categories = capture.MatchFetch(req.URL)
	case TransportExchange:
		categories = capture.MatchExchange(req.URL)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown transport", "transport": req.Transport})
		return
	}

	published := 0
	if len(categories) > 0 {
		published = capture.Emit(h.publisher, req.URL, req.Body, categories)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"matched":   len(categories),
		"published": published,
	})
}

func (h *Handler) APIPostPage(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page location", "details": err.Error()})
		return
	}

	h.navigator.Navigate(req.Location)
	c.JSON(http.StatusAccepted, gin.H{"location": req.Location})
}

func knownType(t messaging.MessageType) bool {
	switch t {
	case messaging.TypeCheckIncomplete, messaging.TypeHydrationSuccess, messaging.TypeRefreshIncomplete,
		messaging.TypeSyncSuccess, messaging.TypeSyncError, messaging.TypeShowToast:
		return true
	}
	return false
}
