// Package discogs looks up genre and style tags for albums on Discogs.
package discogs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/justestif/digster/internal/logger"
)

const (
	apiURL    = "https://api.discogs.com"
	siteURL   = "https://www.discogs.com"
	userAgent = "digster/1.0 +https://github.com/justestif/digster"
	timeout   = 10 * time.Second
)

// errNoResults is returned when the search has no hits.
var errNoResults = errors.New("no results")

// Tags are the genre and style labels of one release.
type Tags struct {
	Genres []string
	Styles []string
}

// Empty reports whether no tags were found.
func (t Tags) Empty() bool {
	return len(t.Genres) == 0 && len(t.Styles) == 0
}

// Client searches the Discogs database.
type Client struct {
	api  *resty.Client
	site *resty.Client
	log  *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL points searches at a different API root.
func WithAPIURL(url string) Option {
	return func(c *Client) { c.api.SetBaseURL(strings.TrimSuffix(url, "/")) }
}

// WithSiteURL points release page scraping at a different site root.
func WithSiteURL(url string) Option {
	return func(c *Client) { c.site.SetBaseURL(strings.TrimSuffix(url, "/")) }
}

// NewClient creates a Discogs client. Database searches fail without a token.
func NewClient(token string, log *logger.Logger, opts ...Option) *Client {
	api := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
	if token != "" {
		api.SetHeader("Authorization", "Discogs token="+token)
	}

	c := &Client{
		api: api,
		site: resty.New().
			SetBaseURL(siteURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		log: log.With("component", "discogs"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the tags of the best release match for an album. Any failure is reported
// as not found; the cause is logged, never returned.
func (c *Client) Lookup(ctx context.Context, album, artist string) (Tags, bool) {
	tags, err := c.lookup(ctx, album, artist)
	if err != nil {
		if !errors.Is(err, errNoResults) {
			c.log.Warn("discogs lookup failed", "album", album, "artist", artist, "error", err)
		}
		return Tags{}, false
	}
	return tags, !tags.Empty()
}

func (c *Client) lookup(ctx context.Context, album, artist string) (Tags, error) {
	hit, err := c.search(ctx, Query(album, artist))
	if err != nil {
		return Tags{}, err
	}

	tags := Tags{Genres: hit.Genre, Styles: hit.Style}
	if tags.Empty() && hit.URI != "" {
		return c.scrapeRelease(ctx, hit.URI)
	}
	return tags, nil
}

// search returns the first release matching q.
func (c *Client) search(ctx context.Context, q string) (*searchResult, error) {
	var body searchResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":    q,
			"type": "release",
		}).
		SetResult(&body).
		Get("/database/search")
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", q, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("searching %q: status %d", q, resp.StatusCode())
	}
	if len(body.Results) == 0 {
		return nil, errNoResults
	}
	return &body.Results[0], nil
}

// Query builds the search string for an album: title then artist, whitespace collapsed.
func Query(album, artist string) string {
	return strings.Join(strings.Fields(album+" "+artist), " ")
}
