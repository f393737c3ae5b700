package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/models"
	"golang.org/x/net/html"
)

const BitSearchName = "BTS"

type BitSearch struct {
	f       *Fetcher
	baseURL string
}

func NewBitSearch(f *Fetcher, baseURL string) *BitSearch {
	return &BitSearch{
		f:       f,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *BitSearch) GetName() string {
	return BitSearchName
}

func (s *BitSearch) Search(ctx context.Context, query string) []models.TorrentCandidate {
	return safeSearch(ctx, s.GetName(), query, func() ([]models.TorrentCandidate, error) {
		return s.search(ctx, query)
	})
}

func (s *BitSearch) search(ctx context.Context, query string) ([]models.TorrentCandidate, error) {
	u := fmt.Sprintf("%v/search?q=%v&category=7&sort=seeders", s.baseURL, url.QueryEscape(query))
	data, err := s.f.Get(ctx, u, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	return parseBitSearch(data)
}

func parseBitSearch(data []byte) ([]models.TorrentCandidate, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse bitsearch page")
	}
	var res []models.TorrentCandidate
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "search-result") {
			if c, ok := parseBitSearchItem(n); ok {
				res = append(res, c)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return res, nil
}

func parseBitSearchItem(n *html.Node) (models.TorrentCandidate, bool) {
	var title, magnet, size string
	var seeders int64
	if t := findFirst(n, func(n *html.Node) bool {
		return n.Type == html.ElementNode && (n.Data == "h5" || hasClass(n, "title"))
	}); t != nil {
		title = textContent(t)
	}
	if a := findFirst(n, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" && strings.HasPrefix(attr(n, "href"), "magnet:")
	}); a != nil {
		magnet = attr(a, "href")
	}
	if magnet == "" {
		return models.TorrentCandidate{}, false
	}
	if title == "" {
		if m, err := metainfo.ParseMagnetUri(magnet); err == nil {
			title = m.DisplayName
		}
	}
	if title == "" {
		return models.TorrentCandidate{}, false
	}
	// stats are rendered as <div><img alt="Size">98.5 MB</div>
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" && n.Parent != nil {
			v := textContent(n.Parent)
			switch strings.ToLower(attr(n, "alt")) {
			case "size":
				size = v
			case "seeder", "seeders":
				seeders, _ = strconv.ParseInt(strings.ReplaceAll(v, ",", ""), 10, 64)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return newCandidate(title, magnet, size, seeders, BitSearchName), true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func findFirst(n *html.Node, match func(n *html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if f := findFirst(c, match); f != nil {
			return f
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
