package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/message"

	"github.com/lysyi3m/birdbrain-relay/app/apiclient"
	"github.com/lysyi3m/birdbrain-relay/app/capture"
	"github.com/lysyi3m/birdbrain-relay/app/events"
	"github.com/lysyi3m/birdbrain-relay/app/messaging"
	"github.com/lysyi3m/birdbrain-relay/app/metrics"
	"github.com/lysyi3m/birdbrain-relay/app/store"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	WatchNoticeWindow     = 30 * time.Second
)

// API is the part of the external API the relay forwards captures to.
type API interface {
	Ingest(ctx context.Context, payload json.RawMessage) (apiclient.IngestResult, error)
	Hydrate(ctx context.Context, restID string, payload json.RawMessage) (apiclient.HydrationResult, error)
}

// Messenger is the relay's view of the message bus.
type Messenger interface {
	Request(ctx context.Context, msg messaging.Message) (messaging.Reply, error)
	Notify(msg messaging.Message)
}

type Options struct {
	Texts          Texts
	RequestTimeout time.Duration
}

// Relay moves captures out of the page context: bookmark pages go to ingest, detail pages of
// incomplete tweets go to hydrate, and the outcome is reported over the bus.
type Relay struct {
	api      API
	bus      Messenger
	texts    Texts
	printer  *message.Printer
	timeout  time.Duration
	inflight singleflight.Group
	noticed  *cache.Cache

	mu       sync.RWMutex
	location string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(api API, bus Messenger, opts Options) *Relay {
	texts := opts.Texts.WithDefaults()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Relay{
		api:     api,
		bus:     bus,
		texts:   texts,
		printer: newPrinter(texts.Language),
		timeout: opts.RequestTimeout,
		noticed: cache.New(WatchNoticeWindow, 2*WatchNoticeWindow),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Attach subscribes the relay to both capture events. Each capture is handled on its own
// goroutine so a slow API call does not hold up the channel.
func (r *Relay) Attach(ch *events.Channel) {
	ch.Subscribe(capture.EventBookmarkCapture, func(c capture.Capture) {
		r.spawn(func(ctx context.Context) { r.HandleBookmark(ctx, c.Body) })
	})
	ch.Subscribe(capture.EventTweetDetailCapture, func(c capture.Capture) {
		r.spawn(func(ctx context.Context) { r.HandleTweetDetail(ctx, c.Body) })
	})
}

// Close abandons in-flight work and waits for handlers to return.
func (r *Relay) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Relay) spawn(fn func(ctx context.Context)) {
	if r.ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
}

func (r *Relay) SetLocation(location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = location
}

func (r *Relay) Location() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.location
}

// HandleBookmark forwards one bookmark timeline capture to ingest and reports the outcome.
func (r *Relay) HandleBookmark(ctx context.Context, raw json.RawMessage) {
	payload, err := NormalizePayload(raw)
	if err != nil {
		metrics.Ingests.WithLabelValues("discarded").Inc()
		slog.Warn("Discarding bookmark capture", "error", err)
		return
	}

	if err := ValidateBookmarkTimeline(payload); err != nil {
		metrics.Ingests.WithLabelValues("ignored").Inc()
		slog.Debug("Capture is not a bookmark timeline, ignoring")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.api.Ingest(reqCtx, payload)
	if err != nil {
		r.reportIngestFailure(err)
		return
	}

	metrics.Ingests.WithLabelValues("success").Inc()
	slog.Info("Bookmark page ingested", "processed_count", result.ProcessedCount)

	success := messaging.SyncSuccess(result.ProcessedCount)
	success.Message = r.printer.Sprintf(r.texts.Saved, result.ProcessedCount)
	r.bus.Notify(success)
	r.bus.Notify(messaging.RefreshIncomplete())
}

func (r *Relay) reportIngestFailure(err error) {
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) {
		metrics.Ingests.WithLabelValues("server_error").Inc()
		slog.Error("Ingest rejected by server", "status", statusErr.Code, "error", err)
		r.bus.Notify(messaging.SyncError(r.printer.Sprintf(r.texts.ServerError, statusErr.Code)))
		return
	}

	metrics.Ingests.WithLabelValues("connection_failed").Inc()
	slog.Error("Ingest failed, API unreachable", "error", err)
	r.bus.Notify(messaging.SyncError(r.texts.ConnectionFailed))
}

// HandleTweetDetail hydrates the tweet on the current page when the coordinator lists it as
// incomplete. Failures are logged and not retried.
func (r *Relay) HandleTweetDetail(ctx context.Context, raw json.RawMessage) {
	restID := TweetIDFromLocation(r.Location())
	if restID == "" {
		slog.Debug("No tweet id in page location, ignoring detail capture", "location", r.Location())
		return
	}

	payload, err := NormalizePayload(raw)
	if err != nil {
		slog.Warn("Discarding tweet detail capture", "rest_id", restID, "error", err)
		return
	}

	rec, ok := r.checkIncomplete(ctx, restID)
	if !ok {
		return
	}

	// Concurrent captures for the same tweet share one hydrate call.
	_, err, shared := r.inflight.Do(restID, func() (any, error) {
		return nil, r.hydrate(ctx, restID, rec, payload)
	})
	if shared {
		slog.Debug("Hydration shared with in-flight call", "rest_id", restID)
	}
	if err != nil {
		slog.Error("Hydration failed", "rest_id", restID, "error", err)
	}
}

func (r *Relay) hydrate(ctx context.Context, restID string, rec *store.Record, payload json.RawMessage) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.api.Hydrate(reqCtx, restID, payload)
	if err != nil {
		metrics.Hydrations.WithLabelValues("failure").Inc()
		return err
	}

	metrics.Hydrations.WithLabelValues("success").Inc()
	slog.Info("Tweet hydrated", "rest_id", restID, "is_truncated", result.IsTruncated, "is_quote_missing", result.IsQuoteMissing)

	r.bus.Notify(messaging.HydrationSuccess(restID))
	r.bus.Notify(messaging.ShowToast(restID, r.hydrationSummary(rec, result)))
	return nil
}

func (r *Relay) hydrationSummary(rec *store.Record, result apiclient.HydrationResult) string {
	var fixed []string
	if rec.IsTruncated && !result.IsTruncated {
		fixed = append(fixed, r.texts.FixedFullText)
	}
	if rec.IsQuoteMissing && !result.IsQuoteMissing {
		fixed = append(fixed, r.texts.FixedQuote)
	}

	if len(fixed) == 0 {
		return r.printer.Sprintf(r.texts.StillIncomplete, rec.AuthorHandle)
	}
	return r.printer.Sprintf(r.texts.Hydrated, strings.Join(fixed, r.texts.FixedJoiner), rec.AuthorHandle)
}

// Navigate updates the location right away and runs the page-load check in the background.
func (r *Relay) Navigate(location string) {
	r.SetLocation(location)
	r.spawn(func(ctx context.Context) { r.PageLoaded(ctx, location) })
}

// PageLoaded tells the UI the tweet at location is being watched when it is incomplete. It does
// not touch the recorded location; by the time it runs the page may have moved on. Repeat loads
// of the same tweet within WatchNoticeWindow notify once.
func (r *Relay) PageLoaded(ctx context.Context, location string) {
	restID := TweetIDFromLocation(location)
	if restID == "" {
		return
	}
	if _, seen := r.noticed.Get(restID); seen {
		return
	}

	rec, ok := r.checkIncomplete(ctx, restID)
	if !ok {
		return
	}
	r.noticed.SetDefault(restID, struct{}{})

	var missing []string
	if rec.IsTruncated {
		missing = append(missing, r.texts.FixedFullText)
	}
	if rec.IsQuoteMissing {
		missing = append(missing, r.texts.FixedQuote)
	}

	slog.Info("Watching incomplete tweet", "rest_id", restID, "author", rec.AuthorHandle)
	r.bus.Notify(messaging.ShowToast(restID, r.printer.Sprintf(r.texts.Watching, rec.AuthorHandle, strings.Join(missing, r.texts.FixedJoiner))))
}

func (r *Relay) checkIncomplete(ctx context.Context, restID string) (*store.Record, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reply, err := r.bus.Request(reqCtx, messaging.CheckIncomplete(restID))
	if err != nil {
		slog.Debug("Incomplete check failed", "rest_id", restID, "error", err)
		return nil, false
	}
	if !reply.IsIncomplete {
		return nil, false
	}

	rec := reply.Data
	if rec == nil {
		rec = &store.Record{RestID: restID}
	}
	return rec, true
}
