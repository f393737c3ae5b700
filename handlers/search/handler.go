package search

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/aggregator"
	"github.com/webtor-io/audio-resolver/services/web"
)

type Aggregator interface {
	Aggregate(ctx context.Context, query string) ([]models.TorrentCandidate, error)
}

type Handler struct {
	ag Aggregator
}

type Response struct {
	Query   string                    `json:"query"`
	Results []models.TorrentCandidate `json:"results"`
}

func RegisterHandler(r *gin.Engine, ag Aggregator) {
	h := &Handler{
		ag: ag,
	}
	r.GET("/search", h.search)
}

func (s *Handler) search(c *gin.Context) {
	q := c.Query("q")
	res, err := s.ag.Aggregate(c.Request.Context(), q)
	if errors.Is(err, aggregator.ErrEmptyQuery) {
		web.Error(c, http.StatusBadRequest, err)
		return
	} else if err != nil {
		web.Logger(c).WithError(err).Error("failed to aggregate search results")
		web.Error(c, http.StatusInternalServerError, err)
		return
	}
	if res == nil {
		res = []models.TorrentCandidate{}
	}
	c.JSON(http.StatusOK, &Response{
		Query:   q,
		Results: res,
	})
}
