package capture

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/birdbrain-relay/app/metrics"
)

type Category string

const (
	CategoryBookmarkTimeline Category = "BOOKMARK_TIMELINE"
	CategoryTweetDetail      Category = "TWEET_DETAIL"
)

const (
	EventBookmarkCapture    = "bookmark-capture"
	EventTweetDetailCapture = "tweet-detail-capture"
)

var ErrInvalidPayload = errors.New("payload is not valid JSON")

// EventName returns the in-document event the category is published under.
func (c Category) EventName() string {
	switch c {
	case CategoryBookmarkTimeline:
		return EventBookmarkCapture
	case CategoryTweetDetail:
		return EventTweetDetailCapture
	}
	return ""
}

// Capture is one matched response body. It only lives for a single relay hand-off.
type Capture struct {
	Category   Category
	URL        string
	Body       json.RawMessage
	CapturedAt time.Time
}

// Publisher receives captures. Publish must not block the caller.
type Publisher interface {
	Publish(c Capture)
}

func IsAPIRequest(url string) bool {
	return strings.Contains(url, "/i/api/") || strings.Contains(url, "graphql")
}

// MatchFetch applies the category filters used for promise-style calls.
func MatchFetch(url string) []Category {
	var categories []Category
	if strings.Contains(url, "Bookmarks") {
		categories = append(categories, CategoryBookmarkTimeline)
	}
	if strings.Contains(url, "TweetDetail") || strings.Contains(url, "TweetResultByRestId") {
		categories = append(categories, CategoryTweetDetail)
	}
	return categories
}

// MatchExchange applies the general API filter first and then the category filters.
func MatchExchange(url string) []Category {
	if !IsAPIRequest(url) {
		return nil
	}
	return MatchFetch(url)
}

// Extract turns a response body into one capture per category. The body must be valid JSON.
func Extract(url string, body []byte, categories []Category) ([]Capture, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, ErrInvalidPayload
	}

	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	now := time.Now()
	captures := make([]Capture, 0, len(categories))
	for _, category := range categories {
		captures = append(captures, Capture{
			Category:   category,
			URL:        url,
			Body:       raw,
			CapturedAt: now,
		})
	}
	return captures, nil
}

// Emit extracts and publishes captures for an already matched body. Failures are logged and
// swallowed; the return value is the number of captures published.
func Emit(pub Publisher, url string, body []byte, categories []Category) (published int) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CaptureFailures.WithLabelValues("publish").Inc()
			slog.Error("Panic recovered while publishing capture", "url", url, "error", r)
		}
	}()

	captures, err := Extract(url, body, categories)
	if err != nil {
		metrics.CaptureFailures.WithLabelValues("parse").Inc()
		slog.Warn("Failed to parse captured response", "url", url, "bytes", len(body), "error", err)
		return 0
	}

	for _, c := range captures {
		slog.Debug("Publishing capture", "event", c.Category.EventName(), "url", url, "bytes", len(c.Body))
		pub.Publish(c)
		metrics.CapturesPublished.WithLabelValues(string(c.Category)).Inc()
		published++
	}
	return published
}
