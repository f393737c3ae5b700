package resolver

import "strings"

// JobState is the coarse caching job state derived from provider status strings
type JobState int

const (
	Converting JobState = iota
	Queued
	Downloading
	Ready
	Failed
)

func (s JobState) String() string {
	switch s {
	case Converting:
		return "converting"
	case Queued:
		return "queued"
	case Downloading:
		return "downloading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are expected
func (s JobState) Terminal() bool {
	return s == Ready || s == Failed
}

// StateFromStatus maps provider status to JobState.
// Unknown statuses are treated as queued, so they never fail a job.
func StateFromStatus(status string) JobState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "magnet_conversion", "waiting_files_selection":
		return Converting
	case "queued":
		return Queued
	case "downloading", "compressing", "uploading":
		return Downloading
	case "downloaded":
		return Ready
	case "error", "virus", "dead", "magnet_error":
		return Failed
	default:
		return Queued
	}
}

// filesPending reports whether provider is still converting magnet and has not listed files yet
func filesPending(status string, files int) bool {
	return files == 0 && strings.EqualFold(strings.TrimSpace(status), "magnet_conversion")
}

// Next returns state after observing provider status, terminal states are sticky
func Next(cur JobState, status string) JobState {
	if cur.Terminal() {
		return cur
	}
	return StateFromStatus(status)
}
