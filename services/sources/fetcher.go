package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/services/common"
	rum "github.com/webtor-io/audio-resolver/services/request_url_mapper"
	"github.com/webtor-io/audio-resolver/services/retry"
	"golang.org/x/time/rate"
)

const maxBodySize = 8 << 20

var ErrChallenge = errors.New("bot challenge detected")

var challengeMarkers = []string{
	"<title>just a moment...</title>",
	"cf-chl",
	"challenge-platform",
	"cf-browser-verification",
	"attention required! | cloudflare",
	"ddos-guard",
}

// IsChallenge detects anti-bot interstitial pages
func IsChallenge(body []byte) bool {
	head := body
	if len(head) > 64<<10 {
		head = head[:64<<10]
	}
	lower := strings.ToLower(string(head))
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

type challengeError struct {
	url string
}

func (e *challengeError) Error() string {
	return fmt.Sprintf("bot challenge detected at %s", e.url)
}

func (e *challengeError) Is(target error) bool {
	return target == ErrChallenge
}

func (e *challengeError) Retryable() bool {
	return false
}

// StatusError is returned for unexpected indexer response codes
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Fetcher performs indexer requests with browser-like headers, per-request timeout and retries.
// Requests to the same host share a rate limiter.
type Fetcher struct {
	cl        *http.Client
	userAgent string
	timeout   time.Duration
	retrier   *retry.Retrier
	mapper    *rum.RequestURLMapper
	limit     rate.Limit
	mux       sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewFetcher(cl *http.Client, userAgent string, timeout time.Duration, r *retry.Retrier, m *rum.RequestURLMapper) *Fetcher {
	if userAgent == "" {
		userAgent = common.DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = common.DefaultSourceTimeout
	}
	return &Fetcher{
		cl:        cl,
		userAgent: userAgent,
		timeout:   timeout,
		retrier:   r,
		mapper:    m,
		limit:     rate.Inf,
		limiters:  map[string]*rate.Limiter{},
	}
}

// WithRateLimit caps requests per second for each indexer host, zero disables limiting
func (f *Fetcher) WithRateLimit(rps float64) *Fetcher {
	if rps > 0 {
		f.limit = rate.Limit(rps)
	}
	return f
}

func (f *Fetcher) limiter(rawURL string) *rate.Limiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mux.Lock()
	defer f.mux.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.limit, 1)
		f.limiters[host] = l
	}
	return l
}

func (f *Fetcher) Get(ctx context.Context, rawURL string, accept string) ([]byte, error) {
	return f.fetch(ctx, http.MethodGet, rawURL, nil, "", accept)
}

func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}
	return f.fetch(ctx, http.MethodPost, rawURL, b, "application/json", "application/json")
}

func (f *Fetcher) fetch(ctx context.Context, method string, rawURL string, body []byte, contentType string, accept string) ([]byte, error) {
	u := f.mapper.MapURL(rawURL)
	l := f.limiter(u)
	return retry.Do(ctx, f.retrier, func() ([]byte, error) {
		if err := l.Wait(ctx); err != nil {
			return nil, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		var rb io.Reader
		if body != nil {
			rb = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, u, rb)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := f.cl.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "failed to execute request")
		}
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, errors.Wrap(err, "failed to read response body")
		}
		if IsChallenge(data) {
			return nil, &challengeError{url: u}
		}
		if rl := retry.NewRateLimitError(resp); rl != nil {
			return nil, rl
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: u}
		}
		return data, nil
	})
}
