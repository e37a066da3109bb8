package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cilia/pkg/metrics"
	"cilia/pkg/middleware"

	"go.uber.org/zap"
)

const (
	maxProxyRedirects = 5
	defaultImageType  = "image/jpeg"
	imageCacheControl = "public, max-age=86400"
)

var errRedirectNotAllowed = errors.New("redirect to a host outside the allow-list")

// ProxyOptions configures the image proxy
type ProxyOptions struct {
	AllowedHosts []string
	MaxBytes     int64
	UserAgent    string
	Timeout      time.Duration
	// Transport overrides the outbound transport, mostly for tests
	Transport http.RoundTripper
}

// ImageProxy re-serves provider-hosted images from this origin with a
// permissive CORS header so the browser can draw them onto a canvas.
type ImageProxy struct {
	client    *http.Client
	allow     HostAllowList
	maxBytes  int64
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

func NewImageProxy(opts ProxyOptions, logger *zap.Logger) *ImageProxy {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}

	p := &ImageProxy{
		allow:     NewHostAllowList(opts.AllowedHosts),
		maxBytes:  opts.MaxBytes,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		logger:    logger,
	}
	p.client = &http.Client{
		Transport:     opts.Transport,
		Timeout:       opts.Timeout,
		CheckRedirect: p.checkRedirect,
	}
	return p
}

func (p *ImageProxy) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxProxyRedirects {
		return fmt.Errorf("stopped after %d redirects", maxProxyRedirects)
	}
	if !p.allow.Allows(req.URL.Hostname()) {
		return fmt.Errorf("%w: %s", errRedirectNotAllowed, req.URL.Hostname())
	}
	return nil
}

// ServeHTTP handles GET /api/proxy-image?url=
func (p *ImageProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := p.logger.With(zap.String("request_id", middleware.RequestIDFromContext(r.Context())))

	raw := r.URL.Query().Get("url")
	if raw == "" {
		metrics.RecordProxy("bad_request")
		writeJSONError(w, http.StatusBadRequest, "URL required")
		return
	}

	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "https" && target.Scheme != "http") || target.Hostname() == "" {
		metrics.RecordProxy("bad_request")
		writeJSONError(w, http.StatusBadRequest, "Invalid URL")
		return
	}

	if !p.allow.Allows(target.Hostname()) {
		logger.Warn("proxy request for disallowed host", zap.String("host", target.Hostname()))
		metrics.RecordProxy("forbidden")
		writeJSONError(w, http.StatusForbidden, "Only Twitter image URLs allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		metrics.RecordProxy("bad_request")
		writeJSONError(w, http.StatusBadRequest, "Invalid URL")
		return
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, errRedirectNotAllowed) {
			logger.Warn("upstream redirected outside the allow-list", zap.Error(err))
			metrics.RecordProxy("forbidden")
			writeJSONError(w, http.StatusForbidden, "Only Twitter image URLs allowed")
			return
		}
		logger.Error("image fetch failed", zap.String("url", target.String()), zap.Error(err))
		metrics.RecordProxy("upstream_error")
		writeJSONError(w, http.StatusBadGateway, "Proxy failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("upstream refused image", zap.String("url", target.String()), zap.Int("status", resp.StatusCode))
		metrics.RecordProxy("upstream_status")
		writeJSONError(w, resp.StatusCode, "Failed to fetch image")
		return
	}

	if resp.ContentLength > p.maxBytes {
		logger.Warn("upstream image too large", zap.Int64("content_length", resp.ContentLength))
		metrics.RecordProxy("too_large")
		writeJSONError(w, http.StatusBadGateway, "Image too large")
		return
	}

	// without a declared length the size is only known once the body is read,
	// so it is buffered before any header is committed
	var buffered []byte
	if resp.ContentLength < 0 {
		buffered, err = io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
		if err != nil {
			logger.Error("image read failed", zap.String("url", target.String()), zap.Error(err))
			metrics.RecordProxy("upstream_error")
			writeJSONError(w, http.StatusBadGateway, "Proxy failed")
			return
		}
		if int64(len(buffered)) > p.maxBytes {
			logger.Warn("upstream image too large", zap.Int64("read_bytes", int64(len(buffered))))
			metrics.RecordProxy("too_large")
			writeJSONError(w, http.StatusBadGateway, "Image too large")
			return
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultImageType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", imageCacheControl)
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if buffered != nil {
		w.Header().Set("Content-Length", strconv.Itoa(len(buffered)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buffered); err != nil {
			logger.Warn("image write interrupted", zap.Error(err))
			metrics.RecordProxy("interrupted")
			return
		}
		metrics.RecordProxy("ok")
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, io.LimitReader(resp.Body, resp.ContentLength))
	if err != nil {
		// headers are gone, nothing left to tell the client
		logger.Warn("image stream interrupted", zap.Int64("bytes", n), zap.Error(err))
		metrics.RecordProxy("interrupted")
		return
	}
	metrics.RecordProxy("ok")
}
