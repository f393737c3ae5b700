package main

import (
	"net/http"

	"github.com/urfave/cli"
	"github.com/webtor-io/audio-resolver/services/aggregator"
	"github.com/webtor-io/audio-resolver/services/common"
	"github.com/webtor-io/audio-resolver/services/realdebrid"
	rum "github.com/webtor-io/audio-resolver/services/request_url_mapper"
	"github.com/webtor-io/audio-resolver/services/resolver"
	"github.com/webtor-io/audio-resolver/services/retry"
	"github.com/webtor-io/audio-resolver/services/sources"
)

func configureSearch(f []cli.Flag) []cli.Flag {
	f = common.RegisterFlags(f)
	f = retry.RegisterFlags(f)
	f = rum.RegisterFlags(f)
	f = sources.RegisterFlags(f)
	return f
}

func configureResolver(f []cli.Flag) []cli.Flag {
	f = realdebrid.RegisterFlags(f)
	f = resolver.RegisterFlags(f)
	return f
}

func makeAggregator(c *cli.Context, cl *http.Client, r *retry.Retrier) (*aggregator.Aggregator, error) {
	// Setting Indexer URL Mapper
	m, err := rum.NewRequestURLMapper(c)
	if err != nil {
		return nil, err
	}

	// Setting Sources
	set, err := sources.New(c, cl, r, m)
	if err != nil {
		return nil, err
	}

	// Setting Aggregator
	return aggregator.New(c, set), nil
}

func makeResolvers(c *cli.Context, cl *http.Client, r *retry.Retrier) *resolver.Factory {
	return resolver.New(c, cl, r)
}
