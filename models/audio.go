package models

import (
	"path"
	"strings"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".wav":  true,
	".aac":  true,
	".ogg":  true,
}

// IsAudioFile checks file extension against supported audio containers
func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(path.Ext(name))]
}

// AudioFileEntry is a file inside a torrent added to the caching service
type AudioFileEntry struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	SizeLabel string `json:"size_label"`
	Selected  bool   `json:"selected"`
}

// ResolvedStream is a fetchable, typically time-limited, audio url
type ResolvedStream struct {
	Title        string `json:"title"`
	StreamURL    string `json:"stream_url"`
	QualityLabel string `json:"quality_label"`
	SizeLabel    string `json:"size_label"`
}
