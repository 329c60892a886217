package relay

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"object", `{"a":1}`, `{"a":1}`, false},
		{"serialized string", `"{\"a\":1}"`, `{"a":1}`, false},
		{"string that does not parse", `"{oops"`, "", true},
		{"plain string", `"hello"`, "", true},
		{"null", `null`, "", true},
		{"empty", ``, "", true},
		{"whitespace padded", "  {\"a\":1}\n", `{"a":1}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePayload(json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("Expected ErrMalformedPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestValidateBookmarkTimeline(t *testing.T) {
	tests := []struct {
		payload string
		valid   bool
	}{
		{bookmarkPage, true},
		{`{"data":{"bookmark_timeline_v2":{"timeline":{"instructions":[]}}}}`, true},
		{`{"data":{"bookmark_timeline_v2":{"timeline":{"instructions":null}}}}`, false},
		{`{"data":{"bookmark_timeline_v2":{}}}`, false},
		{`{"data":{"threaded_conversation_with_injections_v2":{}}}`, false},
		{`{}`, false},
		{`[]`, false},
	}

	for _, tt := range tests {
		err := ValidateBookmarkTimeline(json.RawMessage(tt.payload))
		if tt.valid && err != nil {
			t.Errorf("Expected %s to be valid, got %v", tt.payload, err)
		}
		if !tt.valid && !errors.Is(err, ErrNotBookmarkTimeline) {
			t.Errorf("Expected %s to be rejected, got %v", tt.payload, err)
		}
	}
}

func TestTweetIDFromLocation(t *testing.T) {
	tests := map[string]string{
		"https://x.com/alice/status/1234567890":            "1234567890",
		"https://twitter.com/bob/status/42/photo/1":        "42",
		"https://x.com/carol/status/99?s=20":               "99",
		"/dave/status/7":                                   "7",
		"https://x.com/home":                               "",
		"https://x.com/i/bookmarks":                        "",
		"https://x.com/erin/status/abc":                    "",
		"":                                                 "",
		"https://x.com/search?q=%2Fstatus%2F123&src=typed": "",
	}

	for location, want := range tests {
		if got := TweetIDFromLocation(location); got != want {
			t.Errorf("TweetIDFromLocation(%q): expected %q, got %q", location, want, got)
		}
	}
}
