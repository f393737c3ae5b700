package sources

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/models"
)

const KnabenName = "KNB"

// audio category id
const knabenAudioCategory = 1000000

type Knaben struct {
	f       *Fetcher
	baseURL string
}

type knabenRequest struct {
	SearchType  string `json:"search_type"`
	SearchField string `json:"search_field"`
	Query       string `json:"query"`
	OrderBy     string `json:"order_by"`
	OrderDir    string `json:"order_direction"`
	Categories  []int  `json:"categories"`
	Size        int    `json:"size"`
	HideXXX     bool   `json:"hide_xxx"`
}

type knabenResponse struct {
	Hits []knabenHit `json:"hits"`
}

type knabenHit struct {
	Title     string   `json:"title"`
	MagnetURL string   `json:"magnetUrl"`
	Hash      string   `json:"hash"`
	Bytes     looseInt `json:"bytes"`
	Seeders   looseInt `json:"seeders"`
}

func NewKnaben(f *Fetcher, baseURL string) *Knaben {
	return &Knaben{
		f:       f,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *Knaben) GetName() string {
	return KnabenName
}

func (s *Knaben) Search(ctx context.Context, query string) []models.TorrentCandidate {
	return safeSearch(ctx, s.GetName(), query, func() ([]models.TorrentCandidate, error) {
		return s.search(ctx, query)
	})
}

func (s *Knaben) search(ctx context.Context, query string) ([]models.TorrentCandidate, error) {
	data, err := s.f.PostJSON(ctx, s.baseURL+"/v1", &knabenRequest{
		SearchType:  "score",
		SearchField: "title",
		Query:       query,
		OrderBy:     "seeders",
		OrderDir:    "desc",
		Categories:  []int{knabenAudioCategory},
		Size:        50,
		HideXXX:     true,
	})
	if err != nil {
		return nil, err
	}
	return parseKnaben(data)
}

func parseKnaben(data []byte) ([]models.TorrentCandidate, error) {
	var r knabenResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal knaben response")
	}
	var res []models.TorrentCandidate
	for _, h := range r.Hits {
		magnet := h.MagnetURL
		if !strings.HasPrefix(magnet, "magnet:") {
			var ok bool
			magnet, ok = models.MakeMagnet(h.Hash, h.Title, defaultTrackers)
			if !ok {
				continue
			}
		}
		size := models.UnknownSize
		if h.Bytes > 0 {
			size = humanize.Bytes(uint64(h.Bytes))
		}
		res = append(res, newCandidate(h.Title, magnet, size, int64(h.Seeders), KnabenName))
	}
	return res, nil
}
