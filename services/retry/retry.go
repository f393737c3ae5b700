package retry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	rg "github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	attemptsFlag      = "retry-attempts"
	unitFlag          = "retry-unit"
	rateLimitWaitFlag = "rate-limit-wait"
	maxDelayFlag      = "retry-max-delay"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.UintFlag{
			Name:   attemptsFlag,
			Usage:  "max attempts for outgoing requests",
			Value:  3,
			EnvVar: "RETRY_ATTEMPTS",
		},
		cli.DurationFlag{
			Name:   unitFlag,
			Usage:  "linear backoff unit, n-th retry waits n*unit",
			Value:  500 * time.Millisecond,
			EnvVar: "RETRY_UNIT",
		},
		cli.DurationFlag{
			Name:   rateLimitWaitFlag,
			Usage:  "wait after 429/503 when no Retry-After header is provided",
			Value:  2 * time.Second,
			EnvVar: "RATE_LIMIT_WAIT",
		},
		cli.DurationFlag{
			Name:   maxDelayFlag,
			Usage:  "upper bound for a single wait between attempts, Retry-After included",
			Value:  10 * time.Second,
			EnvVar: "RETRY_MAX_DELAY",
		},
	)
}

type Config struct {
	Attempts      uint
	Unit          time.Duration
	RateLimitWait time.Duration
	MaxDelay      time.Duration
}

var DefaultConfig = Config{
	Attempts:      3,
	Unit:          500 * time.Millisecond,
	RateLimitWait: 2 * time.Second,
	MaxDelay:      10 * time.Second,
}

// Retrier wraps network calls with bounded linear backoff
type Retrier struct {
	cfg Config
}

func New(c *cli.Context) *Retrier {
	return NewRetrier(Config{
		Attempts:      c.Uint(attemptsFlag),
		Unit:          c.Duration(unitFlag),
		RateLimitWait: c.Duration(rateLimitWaitFlag),
		MaxDelay:      c.Duration(maxDelayFlag),
	})
}

func NewRetrier(cfg Config) *Retrier {
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultConfig.Attempts
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = DefaultConfig.RateLimitWait
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	return &Retrier{cfg: cfg}
}

// RateLimitError is returned for 429 and 503 responses
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited with status %d, retry after %v", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited with status %d", e.StatusCode)
}

func (e *RateLimitError) Retryable() bool {
	return true
}

// IsRateLimitStatus reports whether status code should trigger dedicated rate-limit wait
func IsRateLimitStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// NewRateLimitError builds RateLimitError from response, nil if response is not rate limited
func NewRateLimitError(resp *http.Response) error {
	if resp == nil || !IsRateLimitStatus(resp.StatusCode) {
		return nil
	}
	return &RateLimitError{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// ParseRetryAfter supports both delay-seconds and HTTP-date forms
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if s, err := strconv.Atoi(v); err == nil {
		if s < 0 {
			return 0
		}
		return time.Duration(s) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

type retryable interface {
	Retryable() bool
}

// isRetryable classifies a single attempt error. Deadline errors come from
// per-attempt timeouts and are retried while the caller context is alive.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// Delay returns wait before retry after n-th (zero based) failed attempt, capped by MaxDelay
func (s *Retrier) Delay(n uint, err error) time.Duration {
	d := time.Duration(n+1) * s.cfg.Unit
	var rl *RateLimitError
	if errors.As(err, &rl) {
		d = s.cfg.RateLimitWait
		if rl.RetryAfter > 0 {
			d = rl.RetryAfter
		}
	}
	if d > s.cfg.MaxDelay {
		d = s.cfg.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns non-retryable error or attempts are exhausted.
// Last error is propagated as is.
func Do[T any](ctx context.Context, s *Retrier, fn func() (T, error)) (T, error) {
	if s == nil {
		s = NewRetrier(DefaultConfig)
	}
	var res T
	err := rg.Do(
		func() error {
			r, err := fn()
			if err != nil {
				return err
			}
			res = r
			return nil
		},
		rg.Context(ctx),
		rg.Attempts(s.cfg.Attempts),
		rg.LastErrorOnly(true),
		rg.RetryIf(func(err error) bool {
			return ctx.Err() == nil && isRetryable(err)
		}),
		rg.DelayType(func(n uint, err error, _ *rg.Config) time.Duration {
			return s.Delay(n, err)
		}),
		rg.OnRetry(func(n uint, err error) {
			log.WithError(err).
				WithField("attempt", n+1).
				Debug("request failed, retrying")
		}),
	)
	return res, err
}
