// Package content implements Stage 2's HTTP fetch and text extraction
// (component C8): a bounded-timeout, redirect-limited HTTP GET followed by
// goquery-based boilerplate stripping and main-content-selector extraction.
// Grounded on the teacher's internal/fetch package's goquery selector list
// and paragraph-by-paragraph fallback extraction, adapted to the new
// Article shape and the stage's own quality gate.
package content

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/peterbitar/newsfeed-pipeline/internal/urlnorm"
)

const (
	fetchTimeout     = 5 * time.Second
	maxRedirects     = 3
	userAgent        = "Mozilla/5.0 (compatible; newsfeed-pipeline/1.0; +https://example.invalid/bot)"
	truncateOnReject = 1000
)

// boilerplatePhrases are substrings common in cookie banners, paywalls, and
// subscribe prompts; a high density of these in the extracted text signals
// a failed extraction even when the length floor is met.
var boilerplatePhrases = []string{
	"subscribe to continue reading",
	"enable javascript",
	"accept cookies",
	"sign up for our newsletter",
	"this site uses cookies",
	"create a free account",
}

// contentSelectors are tried in order; the first that yields non-empty text
// wins.
var contentSelectors = []string{
	"article", "main", ".main-content", ".entry-content",
	".post-content", ".post-body", ".article-body", "[role='main']",
	".content", "#content",
}

var removeSelectors = []string{
	"script", "style", "nav", "footer", "header", "aside", "form", "iframe", "noscript",
	".sidebar", "#sidebar", ".ad", ".advertisement", ".popup", ".modal", ".cookie-banner",
}

var multiNewline = regexp.MustCompile(`\n{3,}`)

// FetchResult is the outcome of fetching and extracting one article.
type FetchResult struct {
	FinalURL     string
	CanonicalURL string
	CleanText    string
	Truncated    string // present only when the result is rejected by the quality gate
	Accepted     bool
	RejectReason string
}

// Fetch retrieves rawURL with a browser-like User-Agent, follows up to
// maxRedirects redirects, and extracts the main textual content. minLength
// is the content-length quality floor (Threshold Config's
// content_min_length).
func Fetch(ctx context.Context, rawURL string, minLength int) (FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return FetchResult{}, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return FetchResult{}, fmt.Errorf("parsing html from %s: %w", rawURL, err)
	}

	canonical := urlnorm.ExtractCanonicalFromDoc(doc)

	doc.Find(strings.Join(removeSelectors, ", ")).Remove()

	text := extractMainContent(doc)
	text = multiNewline.ReplaceAllString(strings.TrimSpace(text), "\n\n")

	result := FetchResult{
		FinalURL:     resp.Request.URL.String(),
		CanonicalURL: canonical,
		CleanText:    text,
	}

	if len(text) < minLength {
		result.RejectReason = "below minimum content length"
		result.Truncated = truncate(text, truncateOnReject)
		return result, nil
	}
	if isBoilerplateHeavy(text) {
		result.RejectReason = "boilerplate phrase density too high"
		result.Truncated = truncate(text, truncateOnReject)
		return result, nil
	}

	result.Accepted = true
	return result, nil
}

func extractMainContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if text := collectParagraphs(s); text != "" {
				return text
			}
		}
	}
	return collectParagraphs(doc.Find("body"))
}

func collectParagraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p, h1, h2, h3, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

func isBoilerplateHeavy(text string) bool {
	lower := strings.ToLower(text)
	hits := 0
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			hits++
		}
	}
	return hits >= 2 || (len(text) < 600 && hits >= 1)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
