package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/models"
)

const TPBName = "TPB"

// audio category
const tpbAudioCategory = "100"

type TPB struct {
	f       *Fetcher
	baseURL string
}

type tpbItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	InfoHash string   `json:"info_hash"`
	Seeders  looseInt `json:"seeders"`
	Size     looseInt `json:"size"`
}

func NewTPB(f *Fetcher, baseURL string) *TPB {
	return &TPB{
		f:       f,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *TPB) GetName() string {
	return TPBName
}

func (s *TPB) Search(ctx context.Context, query string) []models.TorrentCandidate {
	return safeSearch(ctx, s.GetName(), query, func() ([]models.TorrentCandidate, error) {
		return s.search(ctx, query)
	})
}

func (s *TPB) search(ctx context.Context, query string) ([]models.TorrentCandidate, error) {
	u := fmt.Sprintf("%v/q.php?q=%v&cat=%v", s.baseURL, url.QueryEscape(query), tpbAudioCategory)
	data, err := s.f.Get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}
	return parseTPB(data)
}

func parseTPB(data []byte) ([]models.TorrentCandidate, error) {
	var items []tpbItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tpb response")
	}
	var res []models.TorrentCandidate
	for _, it := range items {
		// "No results returned" placeholder
		if it.ID == "0" {
			continue
		}
		magnet, ok := models.MakeMagnet(it.InfoHash, it.Name, defaultTrackers)
		if !ok {
			continue
		}
		size := models.UnknownSize
		if it.Size > 0 {
			size = humanize.Bytes(uint64(it.Size))
		}
		res = append(res, newCandidate(it.Name, magnet, size, int64(it.Seeders), TPBName))
	}
	return res, nil
}
