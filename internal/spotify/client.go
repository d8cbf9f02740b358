// Package spotify is a client for the Spotify Web API catalog and library endpoints.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/digster/internal/logger"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"
	defaultTimeout = 15 * time.Second
	userAgent      = "digster/1.0"
)

// Sentinel errors.
var (
	// ErrFatal marks a catalog response that must abort the sync.
	ErrFatal = errors.New("spotify catalog request failed")

	// ErrUnauthorized is returned when a request is still rejected after refreshing the token.
	ErrUnauthorized = errors.New("spotify authorization expired")

	// ErrBatchTooLarge is returned when more IDs are passed than the endpoint accepts.
	ErrBatchTooLarge = errors.New("too many ids for one request")
)

// FatalError describes an unexpected non-2xx catalog response.
type FatalError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

func (e *FatalError) Unwrap() error { return ErrFatal }

// Refresher exchanges a refresh token for a new token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Client talks to the Spotify Web API on behalf of one set of credentials per call.
type Client struct {
	http      *resty.Client
	refresher Refresher
	log       *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(strings.TrimSuffix(url, "/"))
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// NewClient creates a catalog client. The refresher is consulted once per request on a 401.
func NewClient(refresher Refresher, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", userAgent),
		refresher: refresher,
		log:       log.With("component", "spotify"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a GET, refreshing creds and retrying once if the access token was rejected.
// path may be relative to the base URL or an absolute "next" link.
func (c *Client) get(ctx context.Context, creds *Credentials, path string, params map[string]string, out any) error {
	refreshed := false
	for {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(creds.AccessToken).
			SetQueryParams(params).
			SetResult(out).
			Get(path)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}

		switch {
		case resp.IsSuccess():
			return nil

		case resp.StatusCode() == http.StatusUnauthorized && !refreshed:
			c.log.Info("access token rejected, refreshing", "path", path)
			token, err := c.refresher.Refresh(ctx, creds.RefreshToken)
			if err != nil {
				return fmt.Errorf("%w: refreshing token: %v", ErrUnauthorized, err)
			}
			creds.AccessToken = token.AccessToken
			if token.RefreshToken != "" {
				creds.RefreshToken = token.RefreshToken
			}
			refreshed = true

		case resp.StatusCode() == http.StatusUnauthorized:
			return fmt.Errorf("GET %s: %w", path, ErrUnauthorized)

		default:
			return &FatalError{
				Method: http.MethodGet,
				URL:    resp.Request.URL,
				Status: resp.StatusCode(),
				Body:   truncate(resp.String(), 512),
			}
		}
	}
}

// SavedAlbums returns one page of the user's saved albums and the library total.
// An empty page means the offset is past the end.
func (c *Client) SavedAlbums(ctx context.Context, creds *Credentials, limit, offset int) ([]SavedAlbum, int, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	var page struct {
		Items []SavedAlbum `json:"items"`
		Total int          `json:"total"`
	}
	err := c.get(ctx, creds, "/me/albums", map[string]string{
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
	}, &page)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching saved albums at offset %d: %w", offset, err)
	}
	return page.Items, page.Total, nil
}

// Tracks looks up full track objects. Unknown IDs are omitted from the result.
func (c *Client) Tracks(ctx context.Context, creds *Credentials, ids []string) ([]Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := checkBatch(ids, MaxTrackIDs); err != nil {
		return nil, err
	}
	var resp struct {
		Tracks []*Track `json:"tracks"`
	}
	if err := c.get(ctx, creds, "/tracks", idsParam(ids), &resp); err != nil {
		return nil, fmt.Errorf("fetching tracks: %w", err)
	}
	return compact(resp.Tracks), nil
}

// Artists looks up full artist objects. Unknown IDs are omitted from the result.
func (c *Client) Artists(ctx context.Context, creds *Credentials, ids []string) ([]Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := checkBatch(ids, MaxArtistIDs); err != nil {
		return nil, err
	}
	var resp struct {
		Artists []*Artist `json:"artists"`
	}
	if err := c.get(ctx, creds, "/artists", idsParam(ids), &resp); err != nil {
		return nil, fmt.Errorf("fetching artists: %w", err)
	}
	return compact(resp.Artists), nil
}

// Albums looks up full album objects. Unknown IDs are omitted from the result.
func (c *Client) Albums(ctx context.Context, creds *Credentials, ids []string) ([]Album, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := checkBatch(ids, MaxAlbumIDs); err != nil {
		return nil, err
	}
	var resp struct {
		Albums []*Album `json:"albums"`
	}
	if err := c.get(ctx, creds, "/albums", idsParam(ids), &resp); err != nil {
		return nil, fmt.Errorf("fetching albums: %w", err)
	}
	return compact(resp.Albums), nil
}

// AudioFeatures looks up audio features. Tracks without analysis are omitted from the result.
func (c *Client) AudioFeatures(ctx context.Context, creds *Credentials, ids []string) ([]AudioFeatures, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := checkBatch(ids, MaxTrackIDs); err != nil {
		return nil, err
	}
	var resp struct {
		AudioFeatures []*AudioFeatures `json:"audio_features"`
	}
	if err := c.get(ctx, creds, "/audio-features", idsParam(ids), &resp); err != nil {
		return nil, fmt.Errorf("fetching audio features: %w", err)
	}
	return compact(resp.AudioFeatures), nil
}

// RecentlyPlayed returns one page of listening history. Pass an empty next for the first page
// and the previous page's Next afterwards.
func (c *Client) RecentlyPlayed(ctx context.Context, creds *Credentials, next string) (*RecentlyPlayedPage, error) {
	path := next
	var params map[string]string
	if path == "" {
		path = "/me/player/recently-played"
		params = map[string]string{"limit": strconv.Itoa(MaxPageSize)}
	}
	var page RecentlyPlayedPage
	if err := c.get(ctx, creds, path, params, &page); err != nil {
		return nil, fmt.Errorf("fetching recently played: %w", err)
	}
	return &page, nil
}

func checkBatch(ids []string, max int) error {
	if len(ids) > max {
		return fmt.Errorf("%w: got %d, max %d", ErrBatchTooLarge, len(ids), max)
	}
	return nil
}

func idsParam(ids []string) map[string]string {
	return map[string]string{"ids": strings.Join(ids, ",")}
}

// compact drops the null entries Spotify returns for unknown IDs.
func compact[T any](in []*T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
