package request_url_mapper

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	IndexerURLMappingsFlag = "indexer-url-mappings"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   IndexerURLMappingsFlag,
			Usage:  "JSON mapping of indexer base urls to mirrors",
			EnvVar: "INDEXER_URL_MAPPINGS",
		},
	)
}

// RequestURLMapper rewrites indexer urls to mirrors, blocked domains are common
type RequestURLMapper struct {
	prefixes []string
	mappings map[string]string
}

// NewRequestURLMapper creates a new RequestURLMapper from cli.Context
// The JSON format is: {"https://blocked.domain": "https://mirror.domain", ...}
func NewRequestURLMapper(c *cli.Context) (*RequestURLMapper, error) {
	return Parse(c.String(IndexerURLMappingsFlag))
}

func Parse(mappingsJSON string) (*RequestURLMapper, error) {
	if mappingsJSON == "" {
		return New(nil), nil
	}

	var mappings map[string]string
	if err := json.Unmarshal([]byte(mappingsJSON), &mappings); err != nil {
		return nil, errors.Wrap(err, "failed to parse INDEXER_URL_MAPPINGS")
	}

	log.WithField("mappings_count", len(mappings)).
		Info("initialized indexer url mapper")

	return New(mappings), nil
}

func New(mappings map[string]string) *RequestURLMapper {
	prefixes := make([]string, 0, len(mappings))
	for from := range mappings {
		prefixes = append(prefixes, from)
	}
	// longest prefix wins
	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})
	return &RequestURLMapper{
		prefixes: prefixes,
		mappings: mappings,
	}
}

// MapURL replaces the beginning of the URL according to the mappings
// If no mapping matches, returns the original URL
func (m *RequestURLMapper) MapURL(url string) string {
	if m == nil || len(m.mappings) == 0 {
		return url
	}

	for _, from := range m.prefixes {
		if !strings.HasPrefix(url, from) {
			continue
		}
		mappedURL := m.mappings[from] + strings.TrimPrefix(url, from)
		log.WithField("original_url", url).
			WithField("mapped_url", mappedURL).
			Debug("mapped indexer url")
		return mappedURL
	}

	return url
}
