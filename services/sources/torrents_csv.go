package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/models"
)

const TorrentsCSVName = "TCSV"

type TorrentsCSV struct {
	f       *Fetcher
	baseURL string
}

type torrentsCSVItem struct {
	InfoHash  string   `json:"infohash"`
	Name      string   `json:"name"`
	SizeBytes looseInt `json:"size_bytes"`
	Seeders   looseInt `json:"seeders"`
}

type torrentsCSVResponse struct {
	Torrents []torrentsCSVItem `json:"torrents"`
}

func NewTorrentsCSV(f *Fetcher, baseURL string) *TorrentsCSV {
	return &TorrentsCSV{
		f:       f,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *TorrentsCSV) GetName() string {
	return TorrentsCSVName
}

func (s *TorrentsCSV) Search(ctx context.Context, query string) []models.TorrentCandidate {
	return safeSearch(ctx, s.GetName(), query, func() ([]models.TorrentCandidate, error) {
		return s.search(ctx, query)
	})
}

func (s *TorrentsCSV) search(ctx context.Context, query string) ([]models.TorrentCandidate, error) {
	u := fmt.Sprintf("%v/service/search?q=%v&size=25", s.baseURL, url.QueryEscape(query))
	data, err := s.f.Get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}
	return parseTorrentsCSV(data)
}

func parseTorrentsCSV(data []byte) ([]models.TorrentCandidate, error) {
	var items []torrentsCSVItem
	// older deployments respond with bare array
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal torrents-csv response")
		}
	} else {
		var r torrentsCSVResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal torrents-csv response")
		}
		items = r.Torrents
	}
	var res []models.TorrentCandidate
	for _, it := range items {
		magnet, ok := models.MakeMagnet(it.InfoHash, it.Name, defaultTrackers)
		if !ok {
			continue
		}
		size := models.UnknownSize
		if it.SizeBytes > 0 {
			size = humanize.Bytes(uint64(it.SizeBytes))
		}
		res = append(res, newCandidate(it.Name, magnet, size, int64(it.Seeders), TorrentsCSVName))
	}
	return res, nil
}
