package resolver

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/webtor-io/audio-resolver/services/realdebrid"
)

var (
	// ErrResolution means the candidate could not be submitted, next candidate should be tried
	ErrResolution = errors.New("resolution failed")
	// ErrJobExpired means the job is gone on provider side, caller should submit again
	ErrJobExpired = errors.New("job expired")
	// ErrJobFailed means provider reported terminal failure for the job
	ErrJobFailed = errors.New("job failed")
	// ErrNoAudioFiles is returned when there is nothing to select
	ErrNoAudioFiles = errors.New("no audio files")

	ErrInvalidCredential = realdebrid.ErrInvalidCredential
)

type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to submit magnet: %v", e.Err)
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// submitError keeps credential errors distinct, everything else becomes ResolutionError
func submitError(err error) error {
	if errors.Is(err, ErrInvalidCredential) {
		return err
	}
	return &ResolutionError{Err: err}
}

// jobError maps missing job to ErrJobExpired
func jobError(id string, err error) error {
	if errors.Is(err, realdebrid.ErrNotFound) {
		return errors.Wrapf(ErrJobExpired, "job %v", id)
	}
	return err
}
