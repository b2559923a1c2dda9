// Package streamproxy relays upstream media bytes to clients without
// buffering whole payloads.
package streamproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBufferSize is the relay chunk size.
const DefaultBufferSize = 128 * 1024

// forwardedHeaders are the only client headers sent upstream.
var forwardedHeaders = []string{"Range", "Accept"}

// hopHeaders are connection-scoped and never relayed.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HandleResolver maps a handle id to its upstream URL.
type HandleResolver interface {
	Resolve(ctx context.Context, handleID string) (string, error)
}

// Config holds proxy settings.
type Config struct {
	// BufferSize is the number of bytes read from upstream per chunk.
	BufferSize int
	// HeaderTimeout bounds the wait for upstream response headers.
	HeaderTimeout time.Duration
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
}

// DefaultConfig returns proxy defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:    DefaultBufferSize,
		HeaderTimeout: 15 * time.Second,
		DialTimeout:   10 * time.Second,
	}
}

// NewHTTPClient builds the upstream client. It has no overall timeout so
// long relays are bounded only by the client connection.
func NewHTTPClient(cfg Config) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		// Range responses must reach the client byte-exact.
		DisableCompression: true,
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

// Proxy relays upstream media.
type Proxy struct {
	handles HandleResolver
	client  *http.Client
	bufPool sync.Pool
}

// NewProxy creates a proxy resolving handles through handles.
func NewProxy(handles HandleResolver, client *http.Client, cfg Config) *Proxy {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	return &Proxy{
		handles: handles,
		client:  client,
		bufPool: sync.Pool{New: func() any {
			b := make([]byte, size)
			return &b
		}},
	}
}

// ServeHandle relays the upstream bound to handleID. Errors are returned
// only while nothing has been written to w.
func (p *Proxy) ServeHandle(w http.ResponseWriter, r *http.Request, handleID string) error {
	target, err := p.handles.Resolve(r.Context(), handleID)
	if err != nil {
		return err
	}
	return p.ServeTarget(w, r, target)
}

// ServeTarget relays targetURL. Upstream status and end-to-end headers
// are copied verbatim. A failure after the first byte truncates the
// response and is logged instead of returned.
func (p *Proxy) ServeTarget(w http.ResponseWriter, r *http.Request, targetURL string) error {
	ctx := r.Context()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build upstream request: %v", repository.ErrUpstreamUnavailable, err)
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Values(h); len(v) > 0 {
			req.Header[h] = append([]string(nil), v...)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.UpstreamResponsesTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", repository.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamResponsesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	start := time.Now()
	written, err := p.relay(w, resp.Body)
	metrics.StreamBytesTotal.Add(float64(written))

	switch {
	case err == nil:
		slog.Debug("stream relayed",
			"status", resp.StatusCode,
			"bytes", written,
			"duration", time.Since(start),
		)
	case ctx.Err() != nil:
		slog.Debug("client disconnected mid-stream",
			"bytes", written,
			"duration", time.Since(start),
		)
	default:
		slog.Warn("stream truncated",
			"error", err,
			"bytes", written,
			"duration", time.Since(start),
		)
	}

	return nil
}

// relay copies src to w chunk by chunk, flushing after every write.
func (p *Proxy) relay(w http.ResponseWriter, src io.Reader) (int64, error) {
	bufp := p.bufPool.Get().(*[]byte)
	defer p.bufPool.Put(bufp)
	buf := *bufp

	rc := http.NewResponseController(w)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				return written, fmt.Errorf("write to client: %w", writeErr)
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, fmt.Errorf("flush to client: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("read upstream: %w", readErr)
		}
	}
}

func copyHeaders(dst, src http.Header) {
	skip := make(map[string]bool, len(hopHeaders))
	for _, h := range hopHeaders {
		skip[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[textproto.CanonicalMIMEHeaderKey(name)] = true
			}
		}
	}

	for k, vv := range src {
		if skip[k] {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
}
