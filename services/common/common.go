package common

import (
	"time"

	"github.com/urfave/cli"
)

const (
	UserAgentFlag     = "user-agent"
	SourceTimeoutFlag = "source-timeout"
)

// DefaultUserAgent mimics desktop browser, indexers block non-browser clients
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

const DefaultSourceTimeout = 10 * time.Second

// DebridTokenHeader carries caller-supplied caching service token
const DebridTokenHeader = "X-Debrid-Token"

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   UserAgentFlag,
			Usage:  "user agent sent to indexers",
			Value:  DefaultUserAgent,
			EnvVar: "USER_AGENT",
		},
		cli.DurationFlag{
			Name:   SourceTimeoutFlag,
			Usage:  "per-request indexer timeout",
			Value:  DefaultSourceTimeout,
			EnvVar: "SOURCE_TIMEOUT",
		},
	)
}
