package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/birdbrain-relay/app/capture"
)

const proxyPrefix = "/proxy"

// NewProxy forwards /proxy/* to upstream through a capturing transport, so bookmark and
// tweet detail responses fetched through it reach the event channel.
func NewProxy(upstream string, publisher capture.Publisher) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy upstream: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("proxy upstream must be an absolute URL, got %q", upstream)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			path := strings.TrimPrefix(r.In.URL.Path, proxyPrefix)
			r.SetURL(target)
			r.Out.URL.Path = strings.TrimRight(target.Path, "/") + "/" + strings.TrimLeft(path, "/")
			r.Out.URL.RawPath = ""
			// Let the transport negotiate compression so captured bodies are plain JSON.
			r.Out.Header.Del("Accept-Encoding")
		},
		Transport: capture.NewTransport(http.DefaultTransport, publisher),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Warn("Proxy request failed", "url", r.URL.String(), "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	slog.Info("Capture proxy enabled", "upstream", target.String(), "prefix", proxyPrefix)
	return proxy, nil
}

func proxyHandler(proxy http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}
