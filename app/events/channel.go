package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lysyi3m/birdbrain-relay/app/capture"
	"github.com/lysyi3m/birdbrain-relay/app/metrics"
)

const DefaultBufferSize = 256

var _ capture.Publisher = (*Channel)(nil)

type Handler func(c capture.Capture)

// Channel is the one-way, in-process event channel between the interceptor and relays.
// Events are delivered in arrival order on a single dispatch goroutine.
type Channel struct {
	queue    chan capture.Capture
	handlers map[string][]Handler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
}

func NewChannel(bufferSize int) *Channel {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Channel{
		queue:    make(chan capture.Capture, bufferSize),
		handlers: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe registers a handler for an event name (capture.EventBookmarkCapture or
// capture.EventTweetDetailCapture).
func (ch *Channel) Subscribe(event string, handler Handler) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], handler)
}

// Publish enqueues a capture without blocking. When the buffer is full or the channel is
// stopped the capture is dropped.
func (ch *Channel) Publish(c capture.Capture) {
	if ch.ctx.Err() != nil {
		return
	}

	select {
	case ch.queue <- c:
	default:
		metrics.EventsDropped.Inc()
		slog.Warn("Event channel full, dropping capture", "event", c.Category.EventName(), "url", c.URL)
	}
}

func (ch *Channel) Start() {
	ch.mu.Lock()
	if ch.started {
		ch.mu.Unlock()
		return
	}
	ch.started = true
	ch.mu.Unlock()

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		for {
			select {
			case <-ch.ctx.Done():
				return
			case c := <-ch.queue:
				ch.dispatch(c)
			}
		}
	}()
}

// Stop ends dispatching. Queued events that were not delivered yet are abandoned.
func (ch *Channel) Stop() {
	ch.cancel()
	ch.wg.Wait()
}

func (ch *Channel) dispatch(c capture.Capture) {
	event := c.Category.EventName()

	ch.mu.RLock()
	handlers := ch.handlers[event]
	ch.mu.RUnlock()

	if len(handlers) == 0 {
		slog.Debug("No listeners for event", "event", event)
		return
	}

	for _, handler := range handlers {
		ch.invoke(event, handler, c)
	}
}

func (ch *Channel) invoke(event string, handler Handler, c capture.Capture) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in event listener", "event", event, "error", r)
		}
	}()
	handler(c)
}
