package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/content"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/fingerprint"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
	"github.com/peterbitar/newsfeed-pipeline/internal/urlnorm"
)

// Stage2 is the Content Fetch stage (component C8): a bounded worker pool
// that fetches each title_filtered article's full HTML, extracts the clean
// text, and applies the quality gate. Grounded on the teacher's own
// worker-pool batch-fetch idiom, adapted to the new per-article quality gate
// and fetch-attempt cap.
type Stage2 struct {
	Thresholds  config.Thresholds
	Concurrency int
}

func (s *Stage2) Name() string                        { return "stage2_content_fetch" }
func (s *Stage2) InputStatuses() []core.Status         { return []core.Status{core.StatusTitleFiltered} }
func (s *Stage2) OrderBy() string                      { return "likely_impact DESC, published_at DESC" }
func (s *Stage2) BatchSize() int                        { return 0 } // fetch rounds are concurrency-bound, not batch-bound
func (s *Stage2) CheckPrerequisite(a *core.Article) error {
	if !a.TitleRelevanceSet {
		return fmt.Errorf("stage2: %w: title triage has not run", pipelineerr.ErrPrerequisiteMissing)
	}
	if a.FetchAttempts >= s.Thresholds.MaxFetchAttempts {
		return fmt.Errorf("stage2: %w: fetch attempts exhausted", pipelineerr.ErrFetchFailure)
	}
	return nil
}

func (s *Stage2) ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error) {
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	updates := make(map[string]map[string]any, len(batch))
	errs := make(map[string]error)
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, a := range batch {
		a := a
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			fields, err := s.fetchOne(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[a.URL] = err
			}
			if fields != nil {
				updates[a.URL] = fields
			}
		}()
	}
	wg.Wait()

	return updates, errs
}

func (s *Stage2) fetchOne(ctx context.Context, a *core.Article) (map[string]any, error) {
	attempts := a.FetchAttempts + 1

	res, err := content.Fetch(ctx, a.URL, s.Thresholds.ContentMinLength)
	if err != nil {
		fields := map[string]any{
			"fetch_attempts": attempts,
			"last_error":     truncateRunes(err.Error(), 500),
		}
		if attempts >= s.Thresholds.MaxFetchAttempts {
			fields["status"] = string(core.StatusDiscarded)
		}
		return fields, fmt.Errorf("%w: %v", pipelineerr.ErrFetchFailure, err)
	}

	normalizedURL := urlnorm.Normalize(a.URL)
	canonical := res.CanonicalURL
	if canonical == "" {
		canonical = normalizedURL
	} else {
		canonical = urlnorm.Normalize(canonical)
	}

	if !res.Accepted {
		fields := map[string]any{
			"fetch_attempts":    attempts,
			"last_error":        truncateRunes("quality gate: "+res.RejectReason, 500),
			"normalized_url":    normalizedURL,
			"canonical_url":     canonical,
			"normalized_domain": urlnorm.Domain(a.URL),
		}
		if attempts >= s.Thresholds.MaxFetchAttempts {
			fields["status"] = string(core.StatusDiscarded)
		}
		return fields, fmt.Errorf("%w: %s", pipelineerr.ErrQualityFailure, res.RejectReason)
	}

	return map[string]any{
		"normalized_url":      normalizedURL,
		"canonical_url":       canonical,
		"normalized_domain":   urlnorm.Domain(a.URL),
		"title_hash_bucket":   titleHashBucket(a.Title),
		"clean_text":          res.CleanText,
		"content_length":      len(res.CleanText),
		"content_fingerprint": fingerprint.SimHash(res.CleanText),
		"content_fetched_at":  time.Now().UTC(),
		"fetch_attempts":      attempts,
		"final_url":           res.FinalURL,
		"status":              string(core.StatusContentFetched),
	}, nil
}

// titleHashBucket is the dedup candidate-selection key: the first three
// lower-cased title words joined by "_", with punctuation treated as a word
// separator.
func titleHashBucket(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, "_")
}
