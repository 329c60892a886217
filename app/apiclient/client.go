package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lysyi3m/birdbrain-relay/app/metrics"
)

var tracer = otel.Tracer("apiclient")

const (
	DefaultBaseURL   = "http://localhost:8787"
	DefaultUserAgent = "birdbrain-relay/1.0"
	DefaultTimeout   = 30 * time.Second

	endpointIngest     = "ingest"
	endpointHydrate    = "hydrate"
	endpointIncomplete = "incomplete"
)

// Paths are the API routes relative to the base URL. Hydrate must contain "{id}".
type Paths struct {
	Ingest     string `yaml:"ingest"`
	Hydrate    string `yaml:"hydrate"`
	Incomplete string `yaml:"incomplete"`
}

var DefaultPaths = Paths{
	Ingest:     "/api/bookmarks/ingest",
	Hydrate:    "/api/hydrate/{id}",
	Incomplete: "/api/tweets/incomplete",
}

type Options struct {
	Paths     Paths
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

type Client struct {
	baseURL    string
	paths      Paths
	userAgent  string
	httpClient *http.Client
}

func New(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	paths := opts.Paths
	if paths.Ingest == "" {
		paths.Ingest = DefaultPaths.Ingest
	}
	if paths.Hydrate == "" {
		paths.Hydrate = DefaultPaths.Hydrate
	}
	if paths.Incomplete == "" {
		paths.Incomplete = DefaultPaths.Incomplete
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		paths:     paths,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
	}
}

// Ingest forwards one bookmark timeline page.
func (c *Client) Ingest(ctx context.Context, payload json.RawMessage) (IngestResult, error) {
	var result IngestResult
	err := c.do(ctx, endpointIngest, http.MethodPost, c.paths.Ingest, payload, &result)
	return result, err
}

// Hydrate sends the raw detail capture for one tweet so the API can repair its record.
func (c *Client) Hydrate(ctx context.Context, restID string, payload json.RawMessage) (HydrationResult, error) {
	var result HydrationResult
	path := strings.ReplaceAll(c.paths.Hydrate, "{id}", url.PathEscape(restID))
	err := c.do(ctx, endpointHydrate, http.MethodPost, path, payload, &result)
	return result, err
}

// Incomplete fetches the authoritative list of incomplete tweets.
func (c *Client) Incomplete(ctx context.Context) (IncompleteList, error) {
	var result IncompleteList
	err := c.do(ctx, endpointIncomplete, http.MethodGet, c.paths.Incomplete, nil, &result)
	return result, err
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body []byte, out any) (err error) {
	ctx, span := tracer.Start(ctx, "apiclient."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.APIRequests.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())
	}()

	target := c.baseURL + path
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.url", target))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		// The same capture re-sent after a retry or a page reload carries the same key.
		key := fmt.Sprintf("%016x", xxh3.Hash(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		span.SetAttributes(attribute.String("idempotency_key", key))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "unreachable"
		return &UnreachableError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = "status"
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Status: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		outcome = "decode"
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}
