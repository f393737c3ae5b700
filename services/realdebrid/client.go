package realdebrid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/webtor-io/audio-resolver/services/retry"
)

const (
	realDebridURLFlag   = "real-debrid-url"
	realDebridTokenFlag = "real-debrid-token"
)

const DefaultBaseURL = "https://api.real-debrid.com/rest/1.0"

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   realDebridURLFlag,
			Usage:  "real-debrid api base url",
			Value:  DefaultBaseURL,
			EnvVar: "REAL_DEBRID_URL",
		},
		cli.StringFlag{
			Name:   realDebridTokenFlag,
			Usage:  "default real-debrid api token, used when request carries no token",
			EnvVar: "REAL_DEBRID_TOKEN",
		},
	)
}

// BaseURL returns configured api base url
func BaseURL(c *cli.Context) string {
	return c.String(realDebridURLFlag)
}

// Token returns configured default api token
func Token(c *cli.Context) string {
	return c.String(realDebridTokenFlag)
}

// Client represents a Real-Debrid API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	retrier    *retry.Retrier
}

// New creates a new Real-Debrid client with the provided HTTP client, base URL, and API token
func New(httpClient *http.Client, baseURL string, token string, r *retry.Retrier) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiToken:   token,
		retrier:    r,
	}
}

// GetUser returns information about the current user
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	data, err := c.get(ctx, "/user", nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal user")
	}
	return &user, nil
}

// UnrestrictLink unrestricts a hoster link
func (c *Client) UnrestrictLink(ctx context.Context, link string) (*Download, error) {
	params := url.Values{}
	params.Set("link", link)
	data, err := c.post(ctx, "/unrestrict/link", params)
	if err != nil {
		return nil, err
	}
	var download Download
	if err := json.Unmarshal(data, &download); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal download")
	}
	return &download, nil
}

// GetTorrentInfo returns information about a specific torrent
func (c *Client) GetTorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	data, err := c.get(ctx, "/torrents/info/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var torrent TorrentInfo
	if err := json.Unmarshal(data, &torrent); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal torrent info")
	}
	return &torrent, nil
}

// AddMagnet adds a torrent via magnet link
func (c *Client) AddMagnet(ctx context.Context, magnet string) (*TorrentAddResponse, error) {
	params := url.Values{}
	params.Set("magnet", magnet)
	data, err := c.post(ctx, "/torrents/addMagnet", params)
	if err != nil {
		return nil, err
	}
	var resp TorrentAddResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal add magnet response")
	}
	if resp.ID == "" {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: "empty torrent id"}
	}
	return &resp, nil
}

// SelectTorrentFiles selects files from a torrent for download
func (c *Client) SelectTorrentFiles(ctx context.Context, id string, fileIDs []string) error {
	params := url.Values{}
	params.Set("files", strings.Join(fileIDs, ","))
	_, err := c.post(ctx, "/torrents/selectFiles/"+url.PathEscape(id), params)
	return err
}

// DeleteTorrent deletes a torrent from the torrents list
func (c *Client) DeleteTorrent(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/torrents/delete/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, params)
}

func (c *Client) do(ctx context.Context, method string, path string, params url.Values) ([]byte, error) {
	return retry.Do(ctx, c.retrier, func() ([]byte, error) {
		var body io.Reader
		if params != nil {
			body = strings.NewReader(params.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, &ProviderError{Message: "failed to create request: " + err.Error()}
		}
		if params != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		return c.doRequest(req)
	})
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	// Set authorization header if token is present
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if rl := retry.NewRateLimitError(resp); rl != nil {
		return nil, rl
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, body)
	}

	// Some endpoints answer 200 with error payload
	if pe := parseErrorBody(resp.StatusCode, body); pe != nil {
		return nil, pe
	}

	return body, nil
}

type apiError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code,omitempty"`
}

func parseError(status int, body []byte) *ProviderError {
	if pe := parseErrorBody(status, body); pe != nil {
		return pe
	}
	return &ProviderError{
		StatusCode: status,
		Message:    http.StatusText(status),
	}
}

func parseErrorBody(status int, body []byte) *ProviderError {
	b := strings.TrimSpace(string(body))
	if !strings.HasPrefix(b, "{") {
		return nil
	}
	var ae apiError
	if err := json.Unmarshal([]byte(b), &ae); err != nil || ae.Error == "" {
		return nil
	}
	return &ProviderError{
		StatusCode: status,
		Code:       ae.ErrorCode,
		Message:    ae.Error,
	}
}
