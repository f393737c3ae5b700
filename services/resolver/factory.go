package resolver

import (
	"crypto/sha1"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/realdebrid"
	"github.com/webtor-io/audio-resolver/services/retry"
	"github.com/webtor-io/lazymap"
)

const (
	settleDelayFlag  = "resolve-settle-delay"
	pollIntervalFlag = "resolve-poll-interval"
	timeoutFlag      = "resolve-timeout"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.DurationFlag{
			Name:   settleDelayFlag,
			Usage:  "wait after file selection before status check",
			Value:  DefaultConfig.SettleDelay,
			EnvVar: "RESOLVE_SETTLE_DELAY",
		},
		cli.DurationFlag{
			Name:   pollIntervalFlag,
			Usage:  "job status poll interval",
			Value:  DefaultConfig.PollInterval,
			EnvVar: "RESOLVE_POLL_INTERVAL",
		},
		cli.DurationFlag{
			Name:   timeoutFlag,
			Usage:  "overall wait for job to become ready",
			Value:  DefaultConfig.Timeout,
			EnvVar: "RESOLVE_TIMEOUT",
		},
	)
}

type Config struct {
	SettleDelay  time.Duration
	PollInterval time.Duration
	Timeout      time.Duration
}

var DefaultConfig = Config{
	SettleDelay:  time.Second,
	PollInterval: 2 * time.Second,
	Timeout:      30 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultConfig.PollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// Factory builds resolvers bound to caller credential
type Factory struct {
	cl       *http.Client
	baseURL  string
	token    string
	r        *retry.Retrier
	cfg      Config
	clock    Clock
	accounts lazymap.LazyMap[*models.Account]
}

func New(c *cli.Context, cl *http.Client, r *retry.Retrier) *Factory {
	return NewFactory(cl, realdebrid.BaseURL(c), realdebrid.Token(c), r, Config{
		SettleDelay:  c.Duration(settleDelayFlag),
		PollInterval: c.Duration(pollIntervalFlag),
		Timeout:      c.Duration(timeoutFlag),
	}, RealClock)
}

func NewFactory(cl *http.Client, baseURL string, token string, r *retry.Retrier, cfg Config, clock Clock) *Factory {
	return &Factory{
		cl:      cl,
		baseURL: baseURL,
		token:   token,
		r:       r,
		cfg:     cfg,
		clock:   clock,
		accounts: lazymap.New[*models.Account](&lazymap.Config{
			Expire:      10 * time.Minute,
			ErrorExpire: 10 * time.Second,
		}),
	}
}

// Get returns resolver for token, configured default token is used when empty
func (s *Factory) Get(token string) (*Resolver, error) {
	if token == "" {
		token = s.token
	}
	if token == "" {
		return nil, errors.Wrap(ErrInvalidCredential, "no caching service token provided")
	}
	r := NewResolver(realdebrid.New(s.cl, s.baseURL, token, s.r), s.cfg, s.clock)
	r.key = fmt.Sprintf("%x", sha1.Sum([]byte(token)))
	r.accounts = &s.accounts
	return r, nil
}
