package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/resolver"
	"github.com/webtor-io/audio-resolver/services/retry"
)

const (
	candidatesFlag = "candidates"
	tokenFlag      = "token"
)

var errNothingResolved = errors.New("no candidate could be resolved")

func makeResolveCMD() cli.Command {
	resolveCMD := cli.Command{
		Name:      "resolve",
		Aliases:   []string{"r"},
		Usage:     "Searches for audio torrent and resolves it to stream urls",
		ArgsUsage: "<query>",
		Action:    resolveAction,
	}
	resolveCMD.Flags = append(resolveCMD.Flags,
		cli.IntFlag{
			Name:  candidatesFlag,
			Usage: "max candidates to try",
			Value: 3,
		},
		cli.StringFlag{
			Name:  tokenFlag,
			Usage: "caching service token, overrides default one",
		},
	)
	resolveCMD.Flags = configureSearch(resolveCMD.Flags)
	resolveCMD.Flags = configureResolver(resolveCMD.Flags)
	return resolveCMD
}

type candidateResolver interface {
	Submit(ctx context.Context, c models.TorrentCandidate) (*resolver.SubmitResult, error)
	WaitFiles(ctx context.Context, jobID string) (*resolver.SubmitResult, error)
	SelectAndDownload(ctx context.Context, jobID string, fileIDs []string) (*resolver.StatusResult, error)
	WaitReady(ctx context.Context, jobID string) (*resolver.StatusResult, error)
}

type resolved struct {
	Candidate models.TorrentCandidate
	Streams   []models.ResolvedStream
}

func resolveAction(c *cli.Context) error {
	query := strings.Join(c.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("no query provided")
	}
	ctx := context.Background()
	cl := http.DefaultClient
	rt := retry.New(c)

	ag, err := makeAggregator(c, cl, rt)
	if err != nil {
		return err
	}
	r, err := makeResolvers(c, cl, rt).Get(c.String(tokenFlag))
	if err != nil {
		return err
	}
	acc, err := r.Verify(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to verify caching service token")
	}
	log.WithField("username", acc.Username).Info("caching service token verified")

	cs, err := ag.Aggregate(ctx, query)
	if err != nil {
		return err
	}
	printCandidates(cs)

	res, err := resolveCandidates(ctx, r, cs, c.Int(candidatesFlag))
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n", res.Candidate.Title)
	for _, s := range res.Streams {
		fmt.Printf("  [%s, %s] %s\n    %s\n", s.QualityLabel, s.SizeLabel, s.Title, s.StreamURL)
	}
	return nil
}

// resolveCandidates tries candidates in rank order until one yields streams.
// Invalid credential stops immediately, any other failure moves to the next candidate.
func resolveCandidates(ctx context.Context, r candidateResolver, cs []models.TorrentCandidate, limit int) (*resolved, error) {
	if limit <= 0 || limit > len(cs) {
		limit = len(cs)
	}
	for _, c := range cs[:limit] {
		l := log.WithFields(log.Fields{
			"title":       c.Title,
			"source_name": c.SourceName,
		})
		streams, err := resolveCandidate(ctx, r, c)
		if errors.Is(err, resolver.ErrInvalidCredential) {
			return nil, err
		} else if err != nil {
			l.WithError(err).Warn("failed to resolve candidate, trying next one")
			continue
		}
		if len(streams) == 0 {
			l.Warn("candidate not ready in time, trying next one")
			continue
		}
		return &resolved{
			Candidate: c,
			Streams:   streams,
		}, nil
	}
	return nil, errNothingResolved
}

func resolveCandidate(ctx context.Context, r candidateResolver, c models.TorrentCandidate) ([]models.ResolvedStream, error) {
	sub, err := r.Submit(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(sub.AudioFiles) == 0 {
		if sub, err = r.WaitFiles(ctx, sub.JobID); err != nil {
			return nil, err
		}
		if sub.FilesPending() {
			return nil, nil
		}
	}
	st, err := r.SelectAndDownload(ctx, sub.JobID, nil)
	if err != nil {
		return nil, err
	}
	if len(st.Streams) > 0 {
		return st.Streams, nil
	}
	st, err = r.WaitReady(ctx, sub.JobID)
	if err != nil {
		return nil, err
	}
	return st.Streams, nil
}
