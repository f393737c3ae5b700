package realdebrid

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCredential = errors.New("invalid debrid credential")
	ErrNotFound          = errors.New("resource not found")
)

// Real-Debrid error codes, see https://api.real-debrid.com/#api_error_codes
const (
	codeUnknownResource  = 7
	codeBadToken         = 8
	codePermissionDenied = 9
	codeUnknownTorrent   = 20
)

// ProviderError is the normalized form of every failed provider response
type ProviderError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("real-debrid error (status %d, error_code %d): %s", e.StatusCode, e.Code, e.Message)
}

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrInvalidCredential:
		return e.StatusCode == http.StatusUnauthorized ||
			e.Code == codeBadToken ||
			e.Code == codePermissionDenied
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound ||
			e.Code == codeUnknownResource ||
			e.Code == codeUnknownTorrent
	}
	return false
}

// Retryable reports whether repeating the same call may succeed
func (e *ProviderError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}
