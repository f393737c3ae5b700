package unrestrict

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/realdebrid"
)

const (
	QualityFLAC = "FLAC"
	Quality320  = "320kbps"
	Quality256  = "256kbps"
	QualityMP3  = "MP3"
)

type API interface {
	UnrestrictLink(ctx context.Context, link string) (*realdebrid.Download, error)
}

// Unrestrictor turns caching service links into public stream urls
type Unrestrictor struct {
	api API
}

func New(api API) *Unrestrictor {
	return &Unrestrictor{
		api: api,
	}
}

// Unrestrict returns nil stream without error when resolved file is not audio
func (s *Unrestrictor) Unrestrict(ctx context.Context, link string) (*models.ResolvedStream, error) {
	d, err := s.api.UnrestrictLink(ctx, link)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unrestrict link %v", link)
	}
	if d == nil || d.Download == "" {
		return nil, errors.Errorf("empty download for link %v", link)
	}
	if !IsAudio(d.Filename, d.MimeType) {
		log.WithFields(log.Fields{
			"filename":  d.Filename,
			"mime_type": d.MimeType,
		}).Debug("skipping non-audio file")
		return nil, nil
	}
	size := models.UnknownSize
	if d.Filesize > 0 {
		size = humanize.Bytes(uint64(d.Filesize))
	}
	return &models.ResolvedStream{
		Title:        d.Filename,
		StreamURL:    d.Download,
		QualityLabel: InferQuality(d.Filename),
		SizeLabel:    size,
	}, nil
}

func IsAudio(filename string, mimeType string) bool {
	return models.IsAudioFile(filename) || strings.HasPrefix(strings.ToLower(mimeType), "audio/")
}

// InferQuality guesses quality label from filename
func InferQuality(filename string) string {
	f := strings.ToLower(filename)
	switch {
	case strings.Contains(f, "flac"):
		return QualityFLAC
	case strings.Contains(f, "320"):
		return Quality320
	case strings.Contains(f, "256"):
		return Quality256
	default:
		return QualityMP3
	}
}
