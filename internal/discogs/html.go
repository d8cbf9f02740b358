package discogs

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scrapeRelease reads the genre and style links off a release page. Search hits
// sometimes come back untagged while the page itself lists them.
func (c *Client) scrapeRelease(ctx context.Context, uri string) (Tags, error) {
	resp, err := c.site.R().SetContext(ctx).Get(uri)
	if err != nil {
		return Tags{}, fmt.Errorf("fetching release page %s: %w", uri, err)
	}
	if !resp.IsSuccess() {
		return Tags{}, fmt.Errorf("fetching release page %s: status %d", uri, resp.StatusCode())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		return Tags{}, fmt.Errorf("expected html at %s, got %q", uri, ct)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return Tags{}, fmt.Errorf("parsing release page %s: %w", uri, err)
	}

	return Tags{
		Genres: linkTexts(doc, `a[href^="/genre/"]`),
		Styles: linkTexts(doc, `a[href^="/style/"]`),
	}, nil
}

// linkTexts returns the distinct trimmed texts of the matching links, in page order.
func linkTexts(doc *goquery.Document, selector string) []string {
	var out []string
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, text)
	})
	return out
}
