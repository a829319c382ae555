// Package sourcetext turns HTML documents into plain source text for extraction.
package sourcetext

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxFetchBytes caps how much of a fetched page is read
const maxFetchBytes = 2 << 20

// chrome is page furniture that never carries article text
const chrome = "script, style, noscript, template, svg, nav, footer, header, aside, form"

// blocks are the elements whose text becomes one paragraph each
const blocks = "h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, td, dd, figcaption"

// FromHTML extracts readable text from an HTML document. Block-level elements
// become paragraphs separated by blank lines; when the page has no such
// elements the whole body text is used.
func FromHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(chrome).Remove()

	var paragraphs []string
	doc.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (a p inside an li) are emitted by the innermost one
		if s.Find(blocks).Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		return collapse(doc.Find("body").Text()), nil
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// Fetcher downloads pages and extracts their text
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher. A nil client gets a default with a 30s timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch downloads rawURL and returns its text. URLs without a scheme are
// fetched over https.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Linkboard/1.0)")
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	return FromHTML(io.LimitReader(resp.Body, maxFetchBytes))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
