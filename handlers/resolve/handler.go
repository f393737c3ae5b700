package resolve

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/common"
	"github.com/webtor-io/audio-resolver/services/resolver"
	"github.com/webtor-io/audio-resolver/services/web"
)

type Resolvers interface {
	Get(token string) (*resolver.Resolver, error)
}

type Handler struct {
	rs Resolvers
}

type SubmitRequest struct {
	Title     string `json:"title"`
	MagnetURI string `json:"magnet_uri"`
}

type SelectRequest struct {
	FileIDs []string `json:"file_ids"`
	Wait    bool     `json:"wait"`
}

func RegisterHandler(r *gin.Engine, rs Resolvers) {
	h := &Handler{
		rs: rs,
	}
	r.GET("/whoami", h.whoami)
	gr := r.Group("/resolve")
	gr.POST("", h.submit)
	gr.POST("/:id/select", h.selectFiles)
	gr.GET("/:id/status", h.status)
}

func (s *Handler) resolver(c *gin.Context) (*resolver.Resolver, bool) {
	r, err := s.rs.Get(c.GetHeader(common.DebridTokenHeader))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return r, true
}

func (s *Handler) whoami(c *gin.Context) {
	r, ok := s.resolver(c)
	if !ok {
		return
	}
	acc, err := r.Verify(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (s *Handler) submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, errors.Wrap(err, "failed to parse request"))
		return
	}
	if !strings.HasPrefix(req.MagnetURI, "magnet:") {
		web.Error(c, http.StatusBadRequest, errors.New("magnet_uri must be a magnet link"))
		return
	}
	r, ok := s.resolver(c)
	if !ok {
		return
	}
	res, err := r.Submit(c.Request.Context(), models.TorrentCandidate{
		Title:     req.Title,
		MagnetURI: req.MagnetURI,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Handler) selectFiles(c *gin.Context) {
	var req SelectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			web.Error(c, http.StatusBadRequest, errors.Wrap(err, "failed to parse request"))
			return
		}
	}
	r, ok := s.resolver(c)
	if !ok {
		return
	}
	id := c.Param("id")
	var res *resolver.StatusResult
	var err error
	if req.Wait {
		res, err = s.selectAndWait(c.Request.Context(), r, id, req.FileIDs)
	} else {
		res, err = r.SelectAndDownload(c.Request.Context(), id, req.FileIDs)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Handler) selectAndWait(ctx context.Context, r *resolver.Resolver, id string, fileIDs []string) (*resolver.StatusResult, error) {
	res, err := r.SelectAndDownload(ctx, id, fileIDs)
	if err != nil {
		return nil, err
	}
	if res.FilesPending() {
		sub, err := r.WaitFiles(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.FilesPending() {
			return res, nil
		}
		if res, err = r.SelectAndDownload(ctx, id, fileIDs); err != nil {
			return nil, err
		}
	}
	if len(res.Streams) > 0 {
		return res, nil
	}
	return r.WaitReady(ctx, id)
}

func (s *Handler) status(c *gin.Context) {
	r, ok := s.resolver(c)
	if !ok {
		return
	}
	res, err := r.CheckStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Handler) fail(c *gin.Context, err error) {
	code := StatusCode(err)
	l := web.Logger(c).WithError(err)
	if code >= http.StatusInternalServerError {
		l.Error("failed to resolve")
	} else {
		l.Warn("failed to resolve")
	}
	web.Error(c, code, err)
}

// StatusCode maps resolver errors to http status codes
func StatusCode(err error) int {
	switch {
	case errors.Is(err, resolver.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, resolver.ErrJobExpired):
		return http.StatusGone
	case errors.Is(err, resolver.ErrJobFailed), errors.Is(err, resolver.ErrNoAudioFiles):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resolver.ErrResolution):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
