// Package pipeline implements the staged Article processor: the generic
// Stage Processor driver (component C13) plus the concrete stage components
// (C6-C12 via the spec's numbering: Title Triage, Cost Gate, Content
// Fetch, Deduplication, Content Classification, Personalization, and
// Ranking & Clustering) and the two orchestrator entry points (C14).
//
// Grounded on the teacher's batch-then-delay digest-building loop
// (internal/pipeline's old builder/pipeline files), generalized here into a
// single polymorphic driver so each stage only supplies what articles it
// wants and how to process a batch of them.
package pipeline

import (
	"context"
	"time"

	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
	"github.com/peterbitar/newsfeed-pipeline/internal/store"
)

// Stage is the generic Stage Processor contract: given a batch of articles
// already filtered to the right input status and passing CheckPrerequisite,
// produce the set of field updates to persist per article.
type Stage interface {
	// Name identifies the stage for logging and run statistics.
	Name() string
	// InputStatuses are the statuses this stage pulls candidate articles from.
	InputStatuses() []core.Status
	// OrderBy is the raw ORDER BY clause used when scanning candidates.
	OrderBy() string
	// BatchSize is the number of articles processed per LLM/IO round.
	BatchSize() int
	// CheckPrerequisite returns a non-nil error (wrapping
	// pipelineerr.ErrPrerequisiteMissing) if a the article is missing a
	// field this stage requires, causing it to be skipped rather than
	// processed.
	CheckPrerequisite(a *core.Article) error
	// ProcessBatch processes one batch and returns, per article URL, either
	// a set of fields to persist or a per-article error (which does not
	// fail the whole batch).
	ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error)
}

// RunStats accounts for one driver pass over one stage.
type RunStats struct {
	StageName    string
	Scanned      int
	Processed    int
	Skipped      map[pipelineerr.SkipReason]int
	Errored      int
}

func newRunStats(name string) *RunStats {
	return &RunStats{StageName: name, Skipped: map[pipelineerr.SkipReason]int{}}
}

// Run drives one stage to completion over every candidate article currently
// eligible, in batches of stage.BatchSize(), sleeping delayBetweenBatches
// between rounds to stay within rate limits. limit caps the total number of
// candidate rows considered (0 = unlimited).
func Run(ctx context.Context, st *store.Store, stage Stage, delayBetweenBatches time.Duration, limit int) (*RunStats, error) {
	stats := newRunStats(stage.Name())

	candidates, err := st.ScanByStatus(ctx, stage.InputStatuses(), stage.OrderBy(), limit)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(candidates)

	var eligible []*core.Article
	for _, a := range candidates {
		if err := stage.CheckPrerequisite(a); err != nil {
			stats.Skipped[pipelineerr.SkipPrerequisiteMissing]++
			continue
		}
		eligible = append(eligible, a)
	}

	batchSize := stage.BatchSize()
	if batchSize <= 0 {
		batchSize = len(eligible)
	}

	for start := 0; start < len(eligible); start += batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := start + batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		updates, errs := stage.ProcessBatch(ctx, batch)
		if len(updates) > 0 {
			if err := st.UpdateFieldsBatch(ctx, updates); err != nil {
				return stats, err
			}
			stats.Processed += len(updates)
		}
		stats.Errored += len(errs)

		if end < len(eligible) && delayBetweenBatches > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(delayBetweenBatches):
			}
		}
	}

	return stats, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
