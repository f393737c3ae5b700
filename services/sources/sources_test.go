package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/retry"
)

const (
	hashA = "0123456789abcdef0123456789abcdef01234567"
	hashB = "89abcdef0123456789abcdef0123456789abcdef"
)

func testFetcher() *Fetcher {
	return NewFetcher(http.DefaultClient, "", time.Second, retry.NewRetrier(retry.Config{
		Attempts:      2,
		Unit:          time.Millisecond,
		RateLimitWait: time.Millisecond,
	}), nil)
}

func TestTPB_Search(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "/q.php", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("cat"))
		_, _ = w.Write([]byte(`[
			{"id":"1","name":"Salmo - Hellvisback (2016) [FLAC]","info_hash":"` + hashA + `","seeders":"42","size":"314572800"},
			{"id":"2","name":"broken","info_hash":"0000000000000000000000000000000000000000","seeders":"1","size":"1"}
		]`))
	}))
	defer srv.Close()

	res := NewTPB(testFetcher(), srv.URL).Search(context.Background(), "salmo hellvisback")
	require.Len(t, res, 1)
	assert.Equal(t, "salmo hellvisback", gotQuery)
	assert.Contains(t, gotUA, "Mozilla/5.0")
	c := res[0]
	assert.Equal(t, "Salmo - Hellvisback (2016) [FLAC]", c.Title)
	assert.Equal(t, hashA, c.InfoHash())
	assert.Equal(t, 42, c.SeederCount)
	assert.Equal(t, "315 MB", c.SizeLabel)
	assert.Equal(t, TPBName, c.SourceName)
}

func TestTPB_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"0","name":"No results returned","info_hash":"0000000000000000000000000000000000000000","seeders":"0","size":"0"}]`))
	}))
	defer srv.Close()

	res := NewTPB(testFetcher(), srv.URL).Search(context.Background(), "nothing")
	assert.Empty(t, res)
}

func TestKnaben_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1", r.URL.Path)
		var req knabenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "salmo", req.Query)
		_, _ = w.Write([]byte(`{"hits":[
			{"title":"Salmo - Playlist","magnetUrl":"magnet:?xt=urn:btih:` + hashA + `&dn=Salmo","bytes":104857600,"seeders":7},
			{"title":"Salmo - Midnite","hash":"` + hashB + `","bytes":0,"seeders":3},
			{"title":"junk","hash":"nothex"}
		]}`))
	}))
	defer srv.Close()

	res := NewKnaben(testFetcher(), srv.URL).Search(context.Background(), "salmo")
	require.Len(t, res, 2)
	assert.Equal(t, hashA, res[0].InfoHash())
	assert.Equal(t, "105 MB", res[0].SizeLabel)
	assert.Equal(t, 7, res[0].SeederCount)
	assert.Equal(t, hashB, res[1].InfoHash())
	assert.Equal(t, models.UnknownSize, res[1].SizeLabel)
	assert.Equal(t, KnabenName, res[1].SourceName)
}

func TestTorrentsCSV_Search(t *testing.T) {
	for name, body := range map[string]string{
		"object": `{"torrents":[{"infohash":"` + hashA + `","name":"Salmo - 1984","size_bytes":52428800,"seeders":5}],"next":null}`,
		"array":  `[{"infohash":"` + hashA + `","name":"Salmo - 1984","size_bytes":52428800,"seeders":5}]`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/service/search", r.URL.Path)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			res := NewTorrentsCSV(testFetcher(), srv.URL).Search(context.Background(), "salmo 1984")
			require.Len(t, res, 1)
			assert.Equal(t, "Salmo - 1984", res[0].Title)
			assert.Equal(t, "52 MB", res[0].SizeLabel)
			assert.Equal(t, 5, res[0].SeederCount)
		})
	}
}

const bitSearchPage = `<!DOCTYPE html><html><body><ul>
<li class="card search-result my-2">
  <div class="info px-3 pt-2 pb-3">
    <h5 class="title w-100 truncate"><a href="/torrent/1">Salmo - Flop (2021) MP3 320</a></h5>
    <div class="stats">
      <div><img alt="Download" src="d.svg">1.2K</div>
      <div><img alt="Size" src="s.svg">98.5 MB</div>
      <div><img alt="Seeder" src="u.svg"><font color="#0AB49A">1,204</font></div>
      <div><img alt="Leecher" src="l.svg"><font color="#C35257">3</font></div>
    </div>
  </div>
  <div class="links"><a class="dl-magnet" href="magnet:?xt=urn:btih:` + hashA + `&amp;dn=Flop">m</a></div>
</li>
<li class="card search-result my-2">
  <div class="info"><h5 class="title">No magnet here</h5></div>
</li>
</ul></body></html>`

func TestBitSearch_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(bitSearchPage))
	}))
	defer srv.Close()

	res := NewBitSearch(testFetcher(), srv.URL).Search(context.Background(), "salmo flop")
	require.Len(t, res, 1)
	c := res[0]
	assert.Equal(t, "Salmo - Flop (2021) MP3 320", c.Title)
	assert.Equal(t, hashA, c.InfoHash())
	assert.Equal(t, "98.5 MB", c.SizeLabel)
	assert.Equal(t, 1204, c.SeederCount)
	assert.Equal(t, BitSearchName, c.SourceName)
}

func TestSearch_ChallengePageYieldsEmpty(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head><body>cf-chl</body></html>`))
	}))
	defer srv.Close()

	res := NewBitSearch(testFetcher(), srv.URL).Search(context.Background(), "salmo")
	assert.Empty(t, res)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearch_RateLimitRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"1","name":"Salmo","info_hash":"` + hashA + `","seeders":"1","size":"1024"}]`))
	}))
	defer srv.Close()

	res := NewTPB(testFetcher(), srv.URL).Search(context.Background(), "salmo")
	assert.Len(t, res, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearch_ServerErrorYieldsEmpty(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := NewTorrentsCSV(testFetcher(), srv.URL).Search(context.Background(), "salmo")
	assert.Empty(t, res)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearch_MalformedBodyYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	assert.Empty(t, NewKnaben(testFetcher(), srv.URL).Search(context.Background(), "salmo"))
}

func TestSafeSearch_RecoversPanic(t *testing.T) {
	res := safeSearch(context.Background(), "X", "q", func() ([]models.TorrentCandidate, error) {
		panic("boom")
	})
	assert.Nil(t, res)
}

func TestIsChallenge(t *testing.T) {
	assert.True(t, IsChallenge([]byte(`<div id="challenge-platform"></div>`)))
	assert.True(t, IsChallenge([]byte(`<title>DDoS-Guard</title>`)))
	assert.False(t, IsChallenge([]byte(`[{"id":"1"}]`)))
}

func TestLooseInt(t *testing.T) {
	var v struct {
		A looseInt `json:"a"`
		B looseInt `json:"b"`
		C looseInt `json:"c"`
		D looseInt `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12","b":7,"c":"n/a","d":3.0}`), &v))
	assert.Equal(t, looseInt(12), v.A)
	assert.Equal(t, looseInt(7), v.B)
	assert.Equal(t, looseInt(0), v.C)
	assert.Equal(t, looseInt(3), v.D)
}

type namedSource string

func (s namedSource) GetName() string { return string(s) }

func (s namedSource) Search(context.Context, string) []models.TorrentCandidate { return nil }

func TestNewSet(t *testing.T) {
	all := []Source{namedSource("TPB"), namedSource("KNB"), namedSource("BTS")}

	s, err := NewSet(all, "tpb", []string{" bts "})
	require.NoError(t, err)
	assert.Equal(t, "TPB", s.Primary.GetName())
	require.Len(t, s.Fallbacks, 1)
	assert.Equal(t, "KNB", s.Fallbacks[0].GetName())

	_, err = NewSet(all, "TPB", []string{"tpb"})
	assert.Error(t, err)
}

func TestFetcher_LimiterPerHost(t *testing.T) {
	f := testFetcher().WithRateLimit(5)
	a1 := f.limiter("https://a.example/q.php?q=1")
	a2 := f.limiter("https://a.example/other")
	b := f.limiter("https://b.example/q.php")
	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.InDelta(t, 5.0, float64(a1.Limit()), 0.001)
}
