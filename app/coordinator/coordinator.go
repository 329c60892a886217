package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/birdbrain-relay/app/apiclient"
	"github.com/lysyi3m/birdbrain-relay/app/metrics"
	"github.com/lysyi3m/birdbrain-relay/app/store"
)

type Record = store.Record

type Trigger string

const (
	TriggerInstall  Trigger = "install"
	TriggerStartup  Trigger = "startup"
	TriggerInterval Trigger = "interval"
	TriggerMessage  Trigger = "message"
	TriggerManual   Trigger = "manual"
)

// Source is the authoritative list of incomplete tweets.
type Source interface {
	Incomplete(ctx context.Context) (apiclient.IncompleteList, error)
}

type Stats struct {
	Records       int        `json:"records"`
	Refreshes     int64      `json:"refreshes"`
	Failures      int64      `json:"failures"`
	Evictions     int64      `json:"evictions"`
	LoadedAtStart int        `json:"loaded_at_start"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
	LastTrigger   Trigger    `json:"last_trigger,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorAt   *time.Time `json:"last_error_at,omitempty"`
}

// Coordinator owns the incomplete cache. It is the only writer of both the in-memory snapshot
// and the persistent store.
type Coordinator struct {
	source Source
	store  store.Store

	// commitMu orders store writes with their snapshot swap; mu guards the snapshot only.
	commitMu sync.Mutex
	mu       sync.RWMutex
	records  map[string]Record
	stats    Stats
}

func New(source Source, st store.Store) *Coordinator {
	return &Coordinator{
		source:  source,
		store:   st,
		records: make(map[string]Record),
	}
}

// Load seeds the snapshot from the persistent store so lookups answer before the first refresh.
func (c *Coordinator) Load(ctx context.Context) error {
	records, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted cache: %w", err)
	}

	c.mu.Lock()
	c.records = records
	c.stats.Records = len(records)
	c.stats.LoadedAtStart = len(records)
	c.mu.Unlock()

	metrics.IncompleteRecords.Set(float64(len(records)))
	slog.Info("Incomplete cache loaded", "records", len(records))
	return nil
}

// Refresh fetches the incomplete list and replaces the cache with it. On any failure the cache
// is left as it was.
func (c *Coordinator) Refresh(ctx context.Context, trigger Trigger) error {
	list, err := c.source.Incomplete(ctx)
	if err != nil {
		c.recordFailure(trigger, err)
		return fmt.Errorf("failed to fetch incomplete tweets: %w", err)
	}

	next := make(map[string]Record, len(list.Tweets))
	for _, tweet := range list.Tweets {
		if tweet.RestID == "" {
			continue
		}
		next[tweet.RestID] = Record{
			RestID:         tweet.RestID,
			AuthorHandle:   tweet.AuthorHandle,
			IsTruncated:    tweet.IsTruncated,
			IsQuoteMissing: tweet.IsQuoteMissing,
			QuotedStatusID: tweet.QuotedStatusID,
		}
	}

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	if err := c.store.Replace(ctx, next); err != nil {
		c.recordFailure(trigger, err)
		return fmt.Errorf("failed to persist incomplete tweets: %w", err)
	}

	now := time.Now().UTC()
	c.mu.Lock()
	c.records = next
	c.stats.Records = len(next)
	c.stats.Refreshes++
	c.stats.LastRefreshAt = &now
	c.stats.LastTrigger = trigger
	c.mu.Unlock()

	metrics.Refreshes.WithLabelValues(string(trigger), "success").Inc()
	metrics.IncompleteRecords.Set(float64(len(next)))
	slog.Info("Incomplete cache refreshed", "trigger", trigger, "records", len(next), "reported_count", list.Count)
	return nil
}

func (c *Coordinator) recordFailure(trigger Trigger, err error) {
	now := time.Now().UTC()
	c.mu.Lock()
	c.stats.Failures++
	c.stats.LastError = err.Error()
	c.stats.LastErrorAt = &now
	c.mu.Unlock()

	metrics.Refreshes.WithLabelValues(string(trigger), "failure").Inc()
	slog.Warn("Incomplete cache refresh failed", "trigger", trigger, "error", err)
}

func (c *Coordinator) Lookup(restID string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[restID]
	return rec, ok
}

// Evict drops one id. Evicting an absent id is a no-op.
func (c *Coordinator) Evict(ctx context.Context, restID string) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.mu.Lock()
	_, existed := c.records[restID]
	delete(c.records, restID)
	remaining := len(c.records)
	c.stats.Records = remaining
	if existed {
		c.stats.Evictions++
	}
	c.mu.Unlock()

	metrics.IncompleteRecords.Set(float64(remaining))

	if err := c.store.Delete(ctx, restID); err != nil {
		return fmt.Errorf("failed to evict %s: %w", restID, err)
	}

	if existed {
		slog.Info("Evicted hydrated tweet", "rest_id", restID, "remaining", remaining)
	}
	return nil
}

// Snapshot returns a copy of the committed cache.
func (c *Coordinator) Snapshot() map[string]Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Record, len(c.records))
	for id, rec := range c.records {
		out[id] = rec
	}
	return out
}

func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
