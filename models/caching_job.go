package models

// CachingJob mirrors caching service torrent record
type CachingJob struct {
	ID       string           `json:"id"`
	Status   string           `json:"status"`
	Progress float64          `json:"progress"`
	Links    []string         `json:"links,omitempty"`
	Files    []AudioFileEntry `json:"files,omitempty"`
}

// Account is returned by caching service whoami call
type Account struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Type       string `json:"type"`
	Expiration string `json:"expiration"`
}
