package pipeline

import (
	"testing"
	"time"

	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

func TestIsDuplicatePairMatchesOnCanonicalURL(t *testing.T) {
	a := &core.Article{CanonicalURL: "https://example.com/story"}
	b := &core.Article{CanonicalURL: "https://example.com/story"}
	if !isDuplicatePair(a, b, 3) {
		t.Error("expected articles with matching canonical URLs to be a duplicate pair")
	}
}

func TestIsDuplicatePairMatchesOnNormalizedURL(t *testing.T) {
	a := &core.Article{NormalizedURL: "site.com/x"}
	b := &core.Article{NormalizedURL: "site.com/x"}
	if !isDuplicatePair(a, b, 3) {
		t.Error("expected articles with matching normalized URLs to be a duplicate pair")
	}
}

// TestIsDuplicatePairScenario4 pins end-to-end scenario 4: A and B carry
// different raw URLs but normalize to the same normalized_url.
func TestIsDuplicatePairScenario4(t *testing.T) {
	a := &core.Article{URL: "https://www.site.com/x/?utm_source=foo", NormalizedURL: "https://site.com/x"}
	b := &core.Article{URL: "http://site.com/x", NormalizedURL: "https://site.com/x"}
	if !isDuplicatePair(a, b, 3) {
		t.Error("expected A and B to dedup on equal normalized_url")
	}
}

func TestIsDuplicatePairTitleHashBucketIsNotAMatchCriterion(t *testing.T) {
	a := &core.Article{TitleHashBucket: "abc123"}
	b := &core.Article{TitleHashBucket: "abc123"}
	if isDuplicatePair(a, b, 3) {
		t.Error("title_hash_bucket is only a candidate-selection key and must not itself produce a duplicate match")
	}
}

func TestIsDuplicatePairFalseWhenNoSignalsMatch(t *testing.T) {
	a := &core.Article{CanonicalURL: "https://example.com/a", NormalizedURL: "example.com/a"}
	b := &core.Article{CanonicalURL: "https://example.com/b", NormalizedURL: "example.com/b"}
	if isDuplicatePair(a, b, 3) {
		t.Error("expected unrelated articles not to be a duplicate pair")
	}
}

func TestComparePriorityPrefersLongerContent(t *testing.T) {
	short := &core.Article{URL: "short", ContentLength: 100}
	long := &core.Article{URL: "long", ContentLength: 500}
	if comparePriority(long, short) <= 0 {
		t.Error("expected longer content to be prioritized over shorter")
	}
}

func TestComparePriorityPrefersEarlierPublication(t *testing.T) {
	now := time.Now()
	older := &core.Article{URL: "older", ContentLength: 100, PublishedAt: now.Add(-time.Hour)}
	newer := &core.Article{URL: "newer", ContentLength: 100, PublishedAt: now}
	if comparePriority(older, newer) <= 0 {
		t.Error("expected earlier-published article to be prioritized when content length ties")
	}
}

func TestFindDuplicateWinnerReturnsStrongerCandidate(t *testing.T) {
	candidate := &core.Article{URL: "https://example.com/original", CanonicalURL: "https://example.com/story", ContentLength: 500}
	a := &core.Article{URL: "https://example.com/mirror", CanonicalURL: "https://example.com/story", ContentLength: 100}

	winner := findDuplicateWinner(a, []*core.Article{candidate}, 3)
	if winner == nil || winner.URL != candidate.URL {
		t.Errorf("expected %s to win, got %v", candidate.URL, winner)
	}
}

func TestFindDuplicateWinnerNilWhenArticleWins(t *testing.T) {
	candidate := &core.Article{URL: "https://example.com/weak", CanonicalURL: "https://example.com/story", ContentLength: 50}
	a := &core.Article{URL: "https://example.com/strong", CanonicalURL: "https://example.com/story", ContentLength: 500}

	if winner := findDuplicateWinner(a, []*core.Article{candidate}, 3); winner != nil {
		t.Errorf("expected article with stronger content to keep its slot, got winner %v", winner)
	}
}
