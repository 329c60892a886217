package capture

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/lysyi3m/birdbrain-relay/app/metrics"
)

var _ http.RoundTripper = (*Transport)(nil)

// Transport observes responses of a wrapped RoundTripper. The response handed back to the
// caller is always the one the wrapped transport produced; matched bodies are buffered and
// replaced with a reader over the same bytes.
type Transport struct {
	base      http.RoundTripper
	publisher Publisher
}

func NewTransport(base http.RoundTripper, publisher Publisher) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, publisher: publisher}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}

	t.observe(req, resp)

	return resp, nil
}

func (t *Transport) observe(req *http.Request, resp *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in capture transport", "error", r)
		}
	}()

	url := requestURL(req)
	if IsAPIRequest(url) {
		slog.Debug("Observed API request", "url", url)
	}

	categories := MatchFetch(url)
	if len(categories) == 0 {
		return
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return
	}

	slog.Debug("Matched capture URL", "transport", "fetch", "url", url, "categories", categories)

	original := resp.Body
	data, readErr := io.ReadAll(original)
	original.Close()
	resp.Body = &replayBody{reader: bytes.NewReader(data), err: readErr}

	if readErr != nil {
		metrics.CaptureFailures.WithLabelValues("read").Inc()
		slog.Warn("Failed to read matched response body", "url", url, "error", readErr)
		return
	}

	Emit(t.publisher, url, data, categories)
}

func requestURL(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.String()
}

// replayBody serves buffered bytes and then the error the original body failed with, if any.
type replayBody struct {
	reader *bytes.Reader
	err    error
}

func (b *replayBody) Read(p []byte) (int, error) {
	n, err := b.reader.Read(p)
	if err == io.EOF && b.err != nil {
		return n, b.err
	}
	return n, err
}

func (b *replayBody) Close() error {
	return nil
}
