package sources

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/common"
	rum "github.com/webtor-io/audio-resolver/services/request_url_mapper"
	"github.com/webtor-io/audio-resolver/services/retry"
)

// Source is a single indexer adapter.
// Search never fails, any network or parse error results in empty list.
type Source interface {
	// GetName returns short tag of the indexer
	GetName() string
	// Search returns candidates found for query
	Search(ctx context.Context, query string) []models.TorrentCandidate
}

const (
	primarySourceFlag   = "primary-source"
	disabledSourcesFlag = "disabled-sources"
	tpbURLFlag          = "tpb-url"
	knabenURLFlag       = "knaben-url"
	bitSearchURLFlag    = "bitsearch-url"
	torrentsCSVURLFlag  = "torrents-csv-url"
	sourceRateFlag      = "source-rate-limit"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   primarySourceFlag,
			Usage:  "tag of the primary source",
			Value:  TPBName,
			EnvVar: "PRIMARY_SOURCE",
		},
		cli.StringFlag{
			Name:   disabledSourcesFlag,
			Usage:  "comma separated tags of disabled sources",
			EnvVar: "DISABLED_SOURCES",
		},
		cli.Float64Flag{
			Name:   sourceRateFlag,
			Usage:  "max requests per second to a single indexer host, 0 disables limiting",
			Value:  2,
			EnvVar: "SOURCE_RATE_LIMIT",
		},
		cli.StringFlag{
			Name:   tpbURLFlag,
			Usage:  "the pirate bay api url",
			Value:  "https://apibay.org",
			EnvVar: "TPB_URL",
		},
		cli.StringFlag{
			Name:   knabenURLFlag,
			Usage:  "knaben api url",
			Value:  "https://api.knaben.org",
			EnvVar: "KNABEN_URL",
		},
		cli.StringFlag{
			Name:   bitSearchURLFlag,
			Usage:  "bitsearch url",
			Value:  "https://bitsearch.to",
			EnvVar: "BITSEARCH_URL",
		},
		cli.StringFlag{
			Name:   torrentsCSVURLFlag,
			Usage:  "torrents-csv url",
			Value:  "https://torrents-csv.com",
			EnvVar: "TORRENTS_CSV_URL",
		},
	)
}

// Set holds primary source and fallbacks
type Set struct {
	Primary   Source
	Fallbacks []Source
}

func New(c *cli.Context, cl *http.Client, r *retry.Retrier, m *rum.RequestURLMapper) (*Set, error) {
	f := NewFetcher(cl, c.String(common.UserAgentFlag), c.Duration(common.SourceTimeoutFlag), r, m).
		WithRateLimit(c.Float64(sourceRateFlag))
	all := []Source{
		NewTPB(f, c.String(tpbURLFlag)),
		NewKnaben(f, c.String(knabenURLFlag)),
		NewBitSearch(f, c.String(bitSearchURLFlag)),
		NewTorrentsCSV(f, c.String(torrentsCSVURLFlag)),
	}
	var disabled []string
	if d := c.String(disabledSourcesFlag); d != "" {
		disabled = strings.Split(d, ",")
	}
	return NewSet(all, c.String(primarySourceFlag), disabled)
}

// NewSet picks primary source by tag, the rest enabled sources become fallbacks
func NewSet(all []Source, primary string, disabled []string) (*Set, error) {
	off := map[string]bool{}
	for _, d := range disabled {
		off[strings.ToLower(strings.TrimSpace(d))] = true
	}
	s := &Set{}
	for _, src := range all {
		name := strings.ToLower(src.GetName())
		if off[name] {
			continue
		}
		if name == strings.ToLower(primary) {
			s.Primary = src
			continue
		}
		s.Fallbacks = append(s.Fallbacks, src)
	}
	if s.Primary == nil {
		return nil, errors.Errorf("primary source %q not found or disabled", primary)
	}
	log.WithFields(log.Fields{
		"primary":         s.Primary.GetName(),
		"fallbacks_count": len(s.Fallbacks),
	}).Info("configured sources")
	return s, nil
}

// safeSearch isolates source failures, errors and panics end up as empty result
func safeSearch(ctx context.Context, name string, query string, fn func() ([]models.TorrentCandidate, error)) (res []models.TorrentCandidate) {
	l := log.WithFields(log.Fields{
		"source_name": name,
		"query":       query,
	})
	defer func() {
		if r := recover(); r != nil {
			l.WithField("panic", r).Error("source panicked, dropping results")
			res = nil
		}
	}()
	cs, err := fn()
	if err != nil {
		switch {
		case errors.Is(err, ErrChallenge):
			l.WithError(err).Warn("source blocked by bot challenge, dropping results")
		case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
			l.WithError(err).Warn("source request timed out, dropping results")
		default:
			l.WithError(err).Warn("source request failed, dropping results")
		}
		return nil
	}
	l.WithField("count", len(cs)).Debug("source search completed")
	return cs
}

func newCandidate(title, magnet, size string, seeders int64, source string) models.TorrentCandidate {
	if strings.TrimSpace(size) == "" {
		size = models.UnknownSize
	}
	if seeders < 0 {
		seeders = 0
	}
	return models.TorrentCandidate{
		Title:       strings.TrimSpace(title),
		MagnetURI:   magnet,
		SizeLabel:   strings.TrimSpace(size),
		SeederCount: int(seeders),
		SourceName:  source,
	}
}

// looseInt accepts both numbers and quoted numbers, anything else decodes to zero
type looseInt int64

func (i *looseInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			n = int64(f)
		}
	}
	*i = looseInt(n)
	return nil
}
