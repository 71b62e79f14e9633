// Package fetch retrieves responses from remote elevation services.
package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/cache"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// Request describes one service call.
type Request struct {
	Params      url.Values
	Service     string // label used in logs and metrics
	URL         string
	Method      string // defaults to GET
	ContentType string
	Body        []byte
	// Header is sent as is and is not part of the cache key.
	Header http.Header
}

// FullURL returns the URL with encoded query parameters.
func (r Request) FullURL() string {
	if len(r.Params) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Params.Encode()
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Key identifies the request in the response cache.
func (r Request) Key() string {
	h := sha256.New()
	h.Write([]byte(r.method()))
	h.Write([]byte{0})
	h.Write([]byte(r.FullURL()))
	h.Write([]byte{0})
	h.Write(r.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// Client sends requests with caching, retries and de-duplication of
// identical requests in flight.
type Client struct {
	http      *http.Client
	store     cache.Store
	group     singleflight.Group
	userAgent string
	retries   int
	backoff   time.Duration
}

// NewHTTPClient returns the transport used for service calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
		Timeout: timeout,
	}
}

// New returns a client. A nil store disables caching.
func New(hc *http.Client, store cache.Store, cfg config.HTTP) *Client {
	if hc == nil {
		hc = NewHTTPClient(cfg.Timeout)
	}
	if store == nil {
		store = cache.Nop{}
	}
	return &Client{
		http:      hc,
		store:     store,
		userAgent: cfg.UserAgent,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
	}
}

// Do returns the response of req, from cache when possible.
func (c *Client) Do(ctx context.Context, req Request) (*cache.Entry, error) {
	key := req.Key()

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("service", req.Service).Msg("Cache read failed")
	} else if ok {
		if e, err := cache.UnmarshalEntry(raw); err == nil {
			metrics.CacheHits.Inc()
			metrics.FetchTotal.WithLabelValues(req.Service, "cached").Inc()
			return e, nil
		}
	}
	metrics.CacheMisses.Inc()

	// The shared fetch outlives any single caller; each caller only stops
	// waiting on its own context. The HTTP client timeout bounds every attempt.
	ch := c.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		e, err := c.fetch(fctx, req)
		if err != nil {
			return nil, err
		}
		if raw, err := e.Marshal(); err == nil {
			if err := c.store.Set(fctx, key, raw); err != nil {
				log.Warn().Err(err).Str("service", req.Service).Msg("Cache write failed")
			}
		}
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cache.Entry), nil
	}
}

// Bytes returns the response body of req.
func (c *Client) Bytes(ctx context.Context, req Request) ([]byte, error) {
	e, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.Body, nil
}

// JSON decodes the response body of req into out.
func (c *Client) JSON(ctx context.Context, req Request, out any) error {
	e, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(e.Body, out); err != nil {
		return &ServiceError{Service: req.Service, URL: req.URL, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, req Request) (*cache.Entry, error) {
	var lastErr error
	status := 0

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			log.Debug().
				Str("service", req.Service).
				Int("attempt", attempt).
				Dur("wait", wait).
				Err(lastErr).
				Msg("Retrying request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		start := time.Now()
		e, code, err := c.once(ctx, req)
		metrics.FetchDuration.WithLabelValues(req.Service).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.FetchTotal.WithLabelValues(req.Service, "ok").Inc()
			log.Trace().
				Str("service", req.Service).
				Str("url", req.URL).
				Int("bytes", len(e.Body)).
				Dur("took", time.Since(start)).
				Msg("Request completed")
			return e, nil
		}

		lastErr, status = err, code
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(code) {
			break
		}
	}

	metrics.FetchTotal.WithLabelValues(req.Service, "error").Inc()
	return nil, &ServiceError{Service: req.Service, URL: req.URL, Status: status, Err: lastErr}
}

func (c *Client) once(ctx context.Context, req Request) (*cache.Entry, int, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.method(), req.FullURL(), body)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range req.Header {
		hreq.Header[k] = v
	}
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	if c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, resp.StatusCode, fmt.Errorf("status code %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	return &cache.Entry{
		URL:         req.FullURL(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
		Stored:      time.Now().UTC(),
	}, resp.StatusCode, nil
}

// retryable reports whether a failed attempt is worth repeating.
// Status 0 means the request failed before a response arrived.
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

// IsContextError reports whether err came from a cancelled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
