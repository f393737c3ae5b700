package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/retry"
)

func makeSearchCMD() cli.Command {
	searchCMD := cli.Command{
		Name:      "search",
		Aliases:   []string{"q"},
		Usage:     "Searches indexers for audio torrents",
		ArgsUsage: "<query>",
		Action:    searchAction,
	}
	searchCMD.Flags = configureSearch(searchCMD.Flags)
	return searchCMD
}

func searchAction(c *cli.Context) error {
	query := strings.Join(c.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("no query provided")
	}
	ag, err := makeAggregator(c, http.DefaultClient, retry.New(c))
	if err != nil {
		return err
	}
	res, err := ag.Aggregate(context.Background(), query)
	if err != nil {
		return err
	}
	printCandidates(res)
	return nil
}

func printCandidates(cs []models.TorrentCandidate) {
	if len(cs) == 0 {
		fmt.Println("no results")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tSEEDERS\tSIZE\tSOURCE\tTITLE")
	for i, c := range cs {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i+1, c.SeederCount, c.SizeLabel, c.SourceName, c.Title)
	}
	_ = tw.Flush()
}
