package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var (
	ErrNotBookmarkTimeline = errors.New("payload has no bookmark timeline instructions")
	ErrMalformedPayload    = errors.New("malformed capture payload")
)

var statusPathRe = regexp.MustCompile(`/status/(\d+)`)

// NormalizePayload accepts either a structured JSON value or a JSON string that itself holds
// serialized JSON, and returns the structured form.
func NormalizePayload(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		trimmed = bytes.TrimSpace([]byte(inner))
	}

	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedPayload)
	}
	if isFalsy(trimmed) {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedPayload)
	}

	return json.RawMessage(trimmed), nil
}

type bookmarkEnvelope struct {
	Data *struct {
		BookmarkTimelineV2 *struct {
			Timeline *struct {
				Instructions json.RawMessage `json:"instructions"`
			} `json:"timeline"`
		} `json:"bookmark_timeline_v2"`
	} `json:"data"`
}

// ValidateBookmarkTimeline checks for data.bookmark_timeline_v2.timeline.instructions.
func ValidateBookmarkTimeline(payload json.RawMessage) error {
	var env bookmarkEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		// Valid JSON that is not an object (array, number) cannot carry the path.
		return ErrNotBookmarkTimeline
	}

	if env.Data == nil || env.Data.BookmarkTimelineV2 == nil || env.Data.BookmarkTimelineV2.Timeline == nil {
		return ErrNotBookmarkTimeline
	}
	if isFalsy(env.Data.BookmarkTimelineV2.Timeline.Instructions) {
		return ErrNotBookmarkTimeline
	}

	return nil
}

// TweetIDFromLocation extracts the numeric id from a /status/<id> page location.
func TweetIDFromLocation(location string) string {
	path := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		path = u.Path
	}

	m := statusPathRe.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}

func isFalsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}
