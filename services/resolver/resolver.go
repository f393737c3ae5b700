package resolver

import (
	"context"
	"path"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/audio-resolver/models"
	"github.com/webtor-io/audio-resolver/services/realdebrid"
	"github.com/webtor-io/audio-resolver/services/unrestrict"
	"github.com/webtor-io/lazymap"
)

// API is the subset of caching service operations used by Resolver
type API interface {
	GetUser(ctx context.Context) (*realdebrid.User, error)
	AddMagnet(ctx context.Context, magnet string) (*realdebrid.TorrentAddResponse, error)
	GetTorrentInfo(ctx context.Context, id string) (*realdebrid.TorrentInfo, error)
	SelectTorrentFiles(ctx context.Context, id string, fileIDs []string) error
	DeleteTorrent(ctx context.Context, id string) error
	UnrestrictLink(ctx context.Context, link string) (*realdebrid.Download, error)
}

type SubmitResult struct {
	JobID      string                  `json:"job_id"`
	AudioFiles []models.AudioFileEntry `json:"audio_files"`
	Status     string                  `json:"status"`
	Progress   float64                 `json:"progress"`
}

// FilesPending reports whether job files are not listed yet and nothing can be selected
func (s *SubmitResult) FilesPending() bool {
	return filesPending(s.Status, len(s.AudioFiles))
}

type StatusResult struct {
	Status   string                  `json:"status"`
	Progress float64                 `json:"progress"`
	State    string                  `json:"state"`
	Streams  []models.ResolvedStream `json:"streams"`
}

// FilesPending reports whether job was left unselected because its files are not listed yet
func (s *StatusResult) FilesPending() bool {
	return filesPending(s.Status, 0)
}

// Resolver drives caching job of a single candidate up to playable links
type Resolver struct {
	api          API
	unrestrictor *unrestrict.Unrestrictor
	cfg          Config
	clock        Clock
	key          string
	accounts     *lazymap.LazyMap[*models.Account]
}

func NewResolver(api API, cfg Config, clock Clock) *Resolver {
	if clock == nil {
		clock = RealClock
	}
	return &Resolver{
		api:          api,
		unrestrictor: unrestrict.New(api),
		cfg:          cfg.withDefaults(),
		clock:        clock,
	}
}

// Verify checks credential with whoami call, result is cached per token
func (s *Resolver) Verify(ctx context.Context) (*models.Account, error) {
	get := func() (*models.Account, error) {
		u, err := s.api.GetUser(ctx)
		if err != nil {
			return nil, err
		}
		return &models.Account{
			ID:         u.ID,
			Username:   u.Username,
			Type:       u.Type,
			Expiration: u.Expiration,
		}, nil
	}
	if s.accounts == nil {
		return get()
	}
	return s.accounts.Get(s.key, get)
}

// Submit adds candidate magnet to caching service and lists its audio files.
// Job is returned in any non-failed state, even without audio files.
func (s *Resolver) Submit(ctx context.Context, c models.TorrentCandidate) (*SubmitResult, error) {
	if c.MagnetURI == "" {
		return nil, &ResolutionError{Err: errors.New("candidate has no magnet uri")}
	}
	l := log.WithFields(log.Fields{
		"title":     c.Title,
		"info_hash": c.InfoHash(),
	})
	added, err := s.api.AddMagnet(ctx, c.MagnetURI)
	if err != nil {
		l.WithError(err).Warn("failed to add magnet")
		return nil, submitError(err)
	}
	info, err := s.api.GetTorrentInfo(ctx, added.ID)
	if err != nil {
		l.WithError(err).Warn("failed to list job files")
		if derr := s.api.DeleteTorrent(ctx, added.ID); derr != nil {
			l.WithError(derr).WithField("job_id", added.ID).Warn("failed to delete orphaned job")
		}
		return nil, submitError(err)
	}
	job := toJob(info)
	l.WithFields(log.Fields{
		"job_id":      job.ID,
		"status":      job.Status,
		"audio_files": len(job.Files),
	}).Info("submitted magnet")
	return toSubmitResult(job), nil
}

// WaitFiles polls job until provider finishes magnet conversion and lists files.
// On timeout the last result is returned without error, AudioFiles stays empty then.
func (s *Resolver) WaitFiles(ctx context.Context, jobID string) (*SubmitResult, error) {
	deadline := s.clock.Now().Add(s.cfg.Timeout)
	for {
		info, err := s.api.GetTorrentInfo(ctx, jobID)
		if err != nil {
			return nil, jobError(jobID, err)
		}
		if StateFromStatus(info.Status) == Failed {
			return nil, errors.Wrapf(ErrJobFailed, "job %v ended with status %v", jobID, info.Status)
		}
		res := toSubmitResult(toJob(info))
		if !filesPending(info.Status, len(info.Files)) {
			return res, nil
		}
		if !s.clock.Now().Before(deadline) {
			log.WithField("job_id", jobID).Debug("job files not listed before deadline")
			return res, nil
		}
		select {
		case <-s.clock.After(s.cfg.PollInterval):
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// SelectAndDownload marks files selected, waits settle delay and returns job status.
// Empty fileIDs selects all audio files of the job. Job still converting magnet
// is reported as is, nothing is selected until its files are listed.
func (s *Resolver) SelectAndDownload(ctx context.Context, jobID string, fileIDs []string) (*StatusResult, error) {
	info, err := s.api.GetTorrentInfo(ctx, jobID)
	if err != nil {
		return nil, jobError(jobID, err)
	}
	if filesPending(info.Status, len(info.Files)) {
		log.WithField("job_id", jobID).Debug("job files not listed yet, skipping selection")
		return &StatusResult{
			Status:   info.Status,
			Progress: info.Progress,
			State:    Converting.String(),
			Streams:  []models.ResolvedStream{},
		}, nil
	}
	job := toJob(info)
	if len(fileIDs) == 0 {
		for _, f := range job.Files {
			fileIDs = append(fileIDs, f.ID)
		}
	}
	if len(fileIDs) == 0 {
		return nil, errors.Wrapf(ErrNoAudioFiles, "job %v", jobID)
	}
	if StateFromStatus(job.Status) != Ready {
		if err := s.api.SelectTorrentFiles(ctx, jobID, fileIDs); err != nil {
			return nil, jobError(jobID, err)
		}
		log.WithFields(log.Fields{
			"job_id": jobID,
			"files":  len(fileIDs),
		}).Debug("selected files")
		select {
		case <-s.clock.After(s.cfg.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.CheckStatus(ctx, jobID)
}

// CheckStatus is read-only status poll, streams are populated only for downloaded jobs
func (s *Resolver) CheckStatus(ctx context.Context, jobID string) (*StatusResult, error) {
	info, err := s.api.GetTorrentInfo(ctx, jobID)
	if err != nil {
		return nil, jobError(jobID, err)
	}
	state := StateFromStatus(info.Status)
	res := &StatusResult{
		Status:   info.Status,
		Progress: info.Progress,
		State:    state.String(),
		Streams:  []models.ResolvedStream{},
	}
	switch state {
	case Failed:
		log.WithFields(log.Fields{
			"job_id": jobID,
			"status": info.Status,
		}).Warn("job failed")
		return nil, errors.Wrapf(ErrJobFailed, "job %v ended with status %v", jobID, info.Status)
	case Ready:
		streams, err := s.unrestrictAll(ctx, info.Links)
		if err != nil {
			return nil, err
		}
		res.Streams = streams
	}
	return res, nil
}

// WaitReady polls job status until it is ready or timeout elapses.
// On timeout the last non-terminal status is returned without error.
func (s *Resolver) WaitReady(ctx context.Context, jobID string) (*StatusResult, error) {
	deadline := s.clock.Now().Add(s.cfg.Timeout)
	state := Converting
	for {
		res, err := s.CheckStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		next := Next(state, res.Status)
		if next != state {
			log.WithFields(log.Fields{
				"job_id": jobID,
				"from":   state.String(),
				"to":     next.String(),
			}).Debug("job state changed")
			state = next
		}
		if state == Ready {
			return res, nil
		}
		if !s.clock.Now().Before(deadline) {
			log.WithFields(log.Fields{
				"job_id": jobID,
				"status": res.Status,
			}).Debug("job not ready before deadline")
			return res, nil
		}
		select {
		case <-s.clock.After(s.cfg.PollInterval):
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

func (s *Resolver) unrestrictAll(ctx context.Context, links []string) ([]models.ResolvedStream, error) {
	streams := []models.ResolvedStream{}
	var lastErr error
	for _, link := range links {
		st, err := s.unrestrictor.Unrestrict(ctx, link)
		if err != nil {
			if errors.Is(err, ErrInvalidCredential) {
				return nil, err
			}
			log.WithError(err).WithField("link", link).Warn("failed to unrestrict link")
			lastErr = err
			continue
		}
		if st == nil {
			continue
		}
		streams = append(streams, *st)
	}
	if len(streams) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return streams, nil
}

func toSubmitResult(job *models.CachingJob) *SubmitResult {
	return &SubmitResult{
		JobID:      job.ID,
		AudioFiles: job.Files,
		Status:     job.Status,
		Progress:   job.Progress,
	}
}

func toJob(info *realdebrid.TorrentInfo) *models.CachingJob {
	job := &models.CachingJob{
		ID:       info.ID,
		Status:   info.Status,
		Progress: info.Progress,
		Links:    info.Links,
		Files:    []models.AudioFileEntry{},
	}
	for _, f := range info.Files {
		if !models.IsAudioFile(f.Path) {
			continue
		}
		job.Files = append(job.Files, models.AudioFileEntry{
			ID:        strconv.Itoa(f.ID),
			Path:      f.Path,
			Filename:  path.Base(f.Path),
			SizeLabel: humanize.Bytes(uint64(f.Bytes)),
			Selected:  f.Selected == 1,
		})
	}
	return job
}
