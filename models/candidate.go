package models

import (
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// UnknownSize is used when an indexer does not report a size
const UnknownSize = "Unknown"

var btihRe = regexp.MustCompile(`(?i)btih:([0-9a-f]{40})`)

// TorrentCandidate is a single search hit reported by an indexer
type TorrentCandidate struct {
	Title       string `json:"title"`
	MagnetURI   string `json:"magnet_uri"`
	SizeLabel   string `json:"size_label"`
	SeederCount int    `json:"seeder_count"`
	SourceName  string `json:"source_name"`
}

// InfoHash returns lower-cased hex info-hash embedded in the magnet uri
// or empty string if there is none
func (c *TorrentCandidate) InfoHash() string {
	return InfoHashFromMagnet(c.MagnetURI)
}

// Key returns identity used for deduplication
func (c *TorrentCandidate) Key() string {
	if h := c.InfoHash(); h != "" {
		return h
	}
	return strings.ToLower(strings.TrimSpace(c.Title))
}

func InfoHashFromMagnet(magnet string) string {
	if magnet == "" {
		return ""
	}
	if m := btihRe.FindStringSubmatch(magnet); m != nil {
		return strings.ToLower(m[1])
	}
	// base32 encoded hashes
	if m, err := metainfo.ParseMagnetUri(magnet); err == nil {
		return m.InfoHash.HexString()
	}
	return ""
}

// MakeMagnet builds magnet uri for indexers that only report info-hash
func MakeMagnet(hash string, name string, trackers []string) (string, bool) {
	var h metainfo.Hash
	if err := h.FromHexString(strings.TrimSpace(hash)); err != nil {
		return "", false
	}
	if h == (metainfo.Hash{}) {
		return "", false
	}
	m := metainfo.Magnet{
		InfoHash:    h,
		DisplayName: name,
		Trackers:    trackers,
	}
	return m.String(), true
}
