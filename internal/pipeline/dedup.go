package pipeline

import (
	"context"
	"fmt"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/fingerprint"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
	"github.com/peterbitar/newsfeed-pipeline/internal/store"
)

// Dedup is the Deduplicator (component C9). It runs after Stage 2 so that
// content_fingerprint, canonical_url, and title_hash_bucket are all
// populated, scans for prior candidates sharing any of those keys, and —
// when the current article is judged the loser of the pair — marks it a
// duplicate of the winner rather than discarding either row outright.
//
// There is exactly one implementation of the candidate-priority comparison
// (here) and of the title-hash-bucket computation (titleHashBucket, called by
// Stage 2); earlier revisions of this pipeline carried two near-duplicate
// copies of each (a merge artifact) — deliberately not reproduced.
type Dedup struct {
	Store      *store.Store
	Thresholds config.Thresholds
}

func (d *Dedup) Name() string                    { return "stage_dedup" }
func (d *Dedup) InputStatuses() []core.Status     { return []core.Status{core.StatusContentFetched} }
func (d *Dedup) OrderBy() string                  { return "published_at ASC" }
func (d *Dedup) BatchSize() int                    { return d.Thresholds.Stage3BatchSize }
func (d *Dedup) CheckPrerequisite(a *core.Article) error {
	if a.ContentFingerprint == "" {
		return fmt.Errorf("stage_dedup: %w: content not fetched", pipelineerr.ErrPrerequisiteMissing)
	}
	return nil
}

func (d *Dedup) ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error) {
	updates := make(map[string]map[string]any, len(batch))
	errs := make(map[string]error)

	for _, a := range batch {
		candidates, err := d.Store.DedupCandidates(ctx, a, d.Thresholds.DedupCandidateWindowHours, d.Thresholds.DedupCandidateLimit)
		if err != nil {
			errs[a.URL] = fmt.Errorf("%w: %v", pipelineerr.ErrFetchFailure, err)
			continue
		}

		winner := findDuplicateWinner(a, candidates, d.Thresholds.SimHashDupHammingThreshold)
		if winner == nil {
			continue // no duplicate found; article advances untouched (status stays content_fetched)
		}
		updates[a.URL] = map[string]any{
			"status":                      string(core.StatusDuplicate),
			"is_duplicate_of_article_id": winner.URL,
		}
	}

	return updates, errs
}

// findDuplicateWinner checks a against each candidate for a true duplicate
// (matching canonical URL, or SimHash Hamming distance within threshold) and
// returns the candidate that should be kept, or nil if a is not a duplicate
// of anything.
func findDuplicateWinner(a *core.Article, candidates []*core.Article, hammingThreshold int) *core.Article {
	for _, c := range candidates {
		if !isDuplicatePair(a, c, hammingThreshold) {
			continue
		}
		if comparePriority(a, c) < 0 {
			return c // a loses, c is kept
		}
		// a wins against this particular candidate; keep scanning in case a
		// loses to a stronger candidate elsewhere in the set.
	}
	return nil
}

// isDuplicatePair reports whether a and c are the same underlying story, in
// the §4.9 priority order: normalized_url equality, then canonical_url
// equality, then near-identical content fingerprint. title_hash_bucket is
// only a candidate-selection key (see DedupCandidates) and is never itself
// grounds for a match — two unrelated articles can share the first three
// title words.
func isDuplicatePair(a, c *core.Article, hammingThreshold int) bool {
	if a.NormalizedURL != "" && a.NormalizedURL == c.NormalizedURL {
		return true
	}
	if a.CanonicalURL != "" && a.CanonicalURL == c.CanonicalURL {
		return true
	}
	if a.ContentFingerprint != "" && c.ContentFingerprint != "" {
		if fingerprint.Hamming(a.ContentFingerprint, c.ContentFingerprint) <= hammingThreshold {
			return true
		}
	}
	return false
}

// comparePriority orders a against b: positive means a should be kept over
// b, negative means b should be kept over a. Three-step comparison: longer
// clean content wins, then earlier publication wins (the original story),
// then the lexicographically smaller URL wins as a deterministic tiebreak.
func comparePriority(a, b *core.Article) int {
	if a.ContentLength != b.ContentLength {
		return a.ContentLength - b.ContentLength
	}
	if !a.PublishedAt.Equal(b.PublishedAt) {
		if a.PublishedAt.Before(b.PublishedAt) {
			return 1
		}
		return -1
	}
	if a.URL < b.URL {
		return 1
	}
	return -1
}
