package aggregator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/common"
	"github.com/webtor-io/audio-resolver/services/normalizer"
	"github.com/webtor-io/audio-resolver/services/sources"
)

const (
	// MinResults is the threshold below which more queries are issued
	MinResults = 3
	// MaxResults caps the list returned to callers
	MaxResults = 20
	// fallbackVariants is the number of variants sent to every fallback source
	fallbackVariants = 2
)

var ErrEmptyQuery = errors.New("empty query")

// Aggregator queries primary source first and falls back to the rest only when it returns too little
type Aggregator struct {
	primary   sources.Source
	fallbacks []sources.Source
	timeout   time.Duration
}

func New(c *cli.Context, set *sources.Set) *Aggregator {
	return NewAggregator(set.Primary, set.Fallbacks, c.Duration(common.SourceTimeoutFlag))
}

func NewAggregator(primary sources.Source, fallbacks []sources.Source, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = common.DefaultSourceTimeout
	}
	return &Aggregator{
		primary:   primary,
		fallbacks: fallbacks,
		timeout:   timeout,
	}
}

type tagged struct {
	models.TorrentCandidate
	primary bool
}

// Aggregate returns ranked and deduplicated candidates, at most MaxResults
func (s *Aggregator) Aggregate(ctx context.Context, query string) ([]models.TorrentCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	words := normalizer.Normalize(query)
	variants := normalizer.GenerateVariants(query)

	primary := s.searchPrimary(ctx, query, variants)

	var fallback []models.TorrentCandidate
	if uniqueCount(primary) < MinResults && len(s.fallbacks) > 0 {
		vs := variants
		if len(vs) > fallbackVariants {
			vs = vs[:fallbackVariants]
		}
		fallback = s.searchFallbacks(ctx, vs)
	}

	all := make([]tagged, 0, len(primary)+len(fallback))
	for _, c := range primary {
		all = append(all, tagged{TorrentCandidate: c, primary: true})
	}
	for _, c := range fallback {
		all = append(all, tagged{TorrentCandidate: c})
	}
	res := rank(filter(dedup(all), words))
	if len(res) > MaxResults {
		res = res[:MaxResults]
	}
	log.WithFields(log.Fields{
		"query":          query,
		"primary_count":  len(primary),
		"fallback_count": len(fallback),
		"count":          len(res),
	}).Info("aggregated search results")
	return res, nil
}

func (s *Aggregator) searchPrimary(ctx context.Context, query string, variants []string) []models.TorrentCandidate {
	if s.primary == nil {
		return nil
	}
	res := s.searchOne(ctx, s.primary, query)
	for _, v := range normalizer.RetryVariants(variants) {
		if uniqueCount(res) >= MinResults || ctx.Err() != nil {
			break
		}
		log.WithFields(log.Fields{
			"source_name": s.primary.GetName(),
			"variant":     v,
		}).Debug("too few primary results, retrying with variant")
		res = append(res, s.searchOne(ctx, s.primary, v)...)
	}
	return res
}

func (s *Aggregator) searchOne(ctx context.Context, src sources.Source, query string) []models.TorrentCandidate {
	searchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return src.Search(searchCtx, query)
}

func (s *Aggregator) searchFallbacks(ctx context.Context, variants []string) []models.TorrentCandidate {
	type call struct {
		src     sources.Source
		variant string
	}
	var calls []call
	for _, src := range s.fallbacks {
		for _, v := range variants {
			calls = append(calls, call{src: src, variant: v})
		}
	}

	// Channel to collect results with their original index to maintain order
	type result struct {
		index      int
		candidates []models.TorrentCandidate
	}
	results := make(chan result, len(calls))
	var wg sync.WaitGroup

	for i, cl := range calls {
		wg.Add(1)
		go func(index int, cl call) {
			defer wg.Done()
			results <- result{
				index:      index,
				candidates: s.searchOne(ctx, cl.src, cl.variant),
			}
		}(i, cl)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([][]models.TorrentCandidate, len(calls))
	for r := range results {
		ordered[r.index] = r.candidates
	}

	var res []models.TorrentCandidate
	for _, cs := range ordered {
		res = append(res, cs...)
	}
	return res
}

// uniqueCount counts distinct identity keys
func uniqueCount(cs []models.TorrentCandidate) int {
	seen := make(map[string]bool, len(cs))
	for _, c := range cs {
		if k := c.Key(); k != "" {
			seen[k] = true
		}
	}
	return len(seen)
}

// dedup keeps first occurrence per identity key
func dedup(cs []tagged) []tagged {
	seen := make(map[string]bool, len(cs))
	res := make([]tagged, 0, len(cs))
	for _, c := range cs {
		k := c.Key()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		res = append(res, c)
	}
	return res
}

// filter drops fallback candidates not matching all query words.
// Primary candidates are kept as is. If nothing from fallbacks matches,
// fallbacks are kept unfiltered.
func filter(cs []tagged, words []string) []tagged {
	var res, matched, fallback []tagged
	for _, c := range cs {
		if c.primary {
			res = append(res, c)
			continue
		}
		fallback = append(fallback, c)
		if normalizer.MatchesAllWords(c.Title, words) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		if len(fallback) > 0 {
			log.WithField("count", len(fallback)).
				Debug("no fallback candidate matched all words, skipping filter")
		}
		return append(res, fallback...)
	}
	return append(res, matched...)
}

// rank puts primary candidates first, then orders by seeders
func rank(cs []tagged) []models.TorrentCandidate {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].primary != cs[j].primary {
			return cs[i].primary
		}
		return cs[i].SeederCount > cs[j].SeederCount
	})
	res := make([]models.TorrentCandidate, len(cs))
	for i, c := range cs {
		res[i] = c.TorrentCandidate
	}
	return res
}
