// Package urlnorm implements the canonical-URL rules used for deduplication
// (component C1 of the pipeline): query-parameter stripping, host/scheme
// normalization, and canonical-link extraction from fetched HTML.
package urlnorm

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// trackingKeys are dropped from the query string; everything else (id,
// article_id, story_id, ...) is preserved.
var trackingKeys = map[string]bool{
	"gclid": true, "fbclid": true, "ref": true, "source": true, "campaign": true, "medium": true,
}

func isTrackingKey(k string) bool {
	if trackingKeys[k] {
		return true
	}
	return strings.HasPrefix(k, "utm_")
}

// Normalize returns the canonical form of rawURL, or rawURL unchanged if it
// cannot be parsed. Never fails.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if u.Host != "localhost" {
		u.Scheme = "https"
	} else if u.Scheme != "" {
		u.Scheme = strings.ToLower(u.Scheme)
	}

	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if isTrackingKey(k) {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}

	u.Fragment = ""

	return u.String()
}

// Domain returns the lower-cased, www-stripped host of rawURL, or "" if it
// cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// ExtractCanonical returns the href of <link rel="canonical"> in htmlDoc, or
// "" if absent or unparseable.
func ExtractCanonical(htmlDoc string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return ""
	}
	return ExtractCanonicalFromDoc(doc)
}

// ExtractCanonicalFromDoc is ExtractCanonical for a document already parsed
// by a caller (e.g. Stage 2, which parses once and both strips boilerplate
// and looks up the canonical link from the same tree).
func ExtractCanonicalFromDoc(doc *goquery.Document) string {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok {
		return ""
	}
	return strings.TrimSpace(href)
}
