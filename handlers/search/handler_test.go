package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/aggregator"
)

type mockAggregator struct {
	results []models.TorrentCandidate
	query   string
}

func (m *mockAggregator) Aggregate(_ context.Context, query string) ([]models.TorrentCandidate, error) {
	m.query = query
	if query == "" {
		return nil, aggregator.ErrEmptyQuery
	}
	return m.results, nil
}

func newTestEngine(ag Aggregator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHandler(r, ag)
	return r
}

func TestSearch(t *testing.T) {
	ag := &mockAggregator{results: []models.TorrentCandidate{
		{Title: "Salmo - Hellvisback", MagnetURI: "magnet:?xt=urn:btih:abc", SeederCount: 5, SourceName: "TPB"},
	}}
	w := httptest.NewRecorder()
	newTestEngine(ag).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?q=salmo+hellvisback", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ag.query != "salmo hellvisback" {
		t.Errorf("expected query to be passed, got %q", ag.query)
	}
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].SourceName != "TPB" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

func TestSearch_NoResults(t *testing.T) {
	w := httptest.NewRecorder()
	newTestEngine(&mockAggregator{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?q=nothing", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"query":"nothing","results":[]}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	w := httptest.NewRecorder()
	newTestEngine(&mockAggregator{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
