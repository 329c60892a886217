package capture

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// failingReader yields some bytes and then an error, like a connection reset mid-body.
type failingReader struct {
	data []byte
	err  error
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, r.err
	}
	r.done = true
	return copy(p, r.data), nil
}

func (r *failingReader) Close() error { return nil }

func TestTransportPassesThroughNonMatchingRequests(t *testing.T) {
	body := io.NopCloser(strings.NewReader("hello"))
	original := &http.Response{StatusCode: http.StatusOK, Body: body}

	pub := &recordingPublisher{}
	transport := NewTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return original, nil
	}), pub)

	req := httptest.NewRequest(http.MethodGet, "https://x.com/i/api/graphql/abc/HomeTimeline", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}

	if resp != original {
		t.Error("Expected the wrapped transport's response to be returned as-is")
	}
	if resp.Body != body {
		t.Error("Body of a non-matching response must not be replaced")
	}
	if len(pub.all()) != 0 {
		t.Errorf("Expected no captures, got %d", len(pub.all()))
	}
}

func TestTransportCapturesAndPreservesBody(t *testing.T) {
	payload := `{"data":{"bookmark_timeline_v2":{"timeline":{"instructions":[]}}}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer server.Close()

	pub := &recordingPublisher{}
	client := &http.Client{Transport: NewTransport(http.DefaultTransport, pub)}

	resp, err := client.Get(server.URL + "/i/api/graphql/xyz/Bookmarks?variables=%7B%7D")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Errorf("Caller body changed: expected %s, got %s", payload, got)
	}

	captures := pub.all()
	if len(captures) != 1 {
		t.Fatalf("Expected exactly 1 capture, got %d", len(captures))
	}
	if captures[0].Category != CategoryBookmarkTimeline {
		t.Errorf("Expected bookmark category, got %s", captures[0].Category)
	}
	if string(captures[0].Body) != payload {
		t.Errorf("Capture body mismatch: %s", captures[0].Body)
	}
}

func TestTransportPublishesOncePerCategory(t *testing.T) {
	pub := &recordingPublisher{}
	transport := NewTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{"data":{}}`))}, nil
	}), pub)

	req := httptest.NewRequest(http.MethodGet, "https://x.com/i/api/graphql/Bookmarks/TweetDetail", nil)
	if _, err := transport.RoundTrip(req); err != nil {
		t.Fatal(err)
	}

	captures := pub.all()
	if len(captures) != 2 {
		t.Fatalf("Expected one capture per category, got %d", len(captures))
	}
	if captures[0].Category == captures[1].Category {
		t.Error("Expected two distinct categories")
	}
}

func TestTransportInvalidJSONStillDelivered(t *testing.T) {
	pub := &recordingPublisher{}
	transport := NewTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("rate limited"))}, nil
	}), pub)

	req := httptest.NewRequest(http.MethodGet, "https://x.com/i/api/graphql/abc/TweetDetail", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}

	got, _ := io.ReadAll(resp.Body)
	if string(got) != "rate limited" {
		t.Errorf("Expected original body, got %q", got)
	}
	if len(pub.all()) != 0 {
		t.Error("Invalid JSON must not be published")
	}
}

func TestTransportReadFailureSurfacesToCallerUnchanged(t *testing.T) {
	readErr := errors.New("connection reset")
	pub := &recordingPublisher{}
	transport := NewTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: &failingReader{data: []byte(`{"da`), err: readErr}}, nil
	}), pub)

	req := httptest.NewRequest(http.MethodGet, "https://x.com/i/api/graphql/abc/Bookmarks", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip itself must not fail, got %v", err)
	}

	var buf bytes.Buffer
	_, copyErr := io.Copy(&buf, resp.Body)
	if !errors.Is(copyErr, readErr) {
		t.Errorf("Expected caller to see the original read error, got %v", copyErr)
	}
	if buf.String() != `{"da` {
		t.Errorf("Expected partial bytes to be preserved, got %q", buf.String())
	}
	if len(pub.all()) != 0 {
		t.Error("Nothing should be published after a read failure")
	}
}

func TestTransportPropagatesTransportErrors(t *testing.T) {
	wantErr := errors.New("dial tcp: refused")
	pub := &recordingPublisher{}
	transport := NewTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, wantErr
	}), pub)

	req := httptest.NewRequest(http.MethodGet, "https://x.com/i/api/graphql/abc/Bookmarks", nil)
	resp, err := transport.RoundTrip(req)
	if err != wantErr {
		t.Errorf("Expected the wrapped error, got %v", err)
	}
	if resp != nil {
		t.Error("Expected nil response")
	}
}

func TestTransportPublisherPanicDoesNotReachCaller(t *testing.T) {
	transport := NewTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{"x":1}`))}, nil
	}), panickingPublisher{})

	req := httptest.NewRequest(http.MethodGet, "https://x.com/i/api/graphql/abc/Bookmarks", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != `{"x":1}` {
		t.Errorf("Expected body to survive a panicking publisher, got %q", got)
	}
}
