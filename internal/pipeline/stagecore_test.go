package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
	"github.com/peterbitar/newsfeed-pipeline/internal/store"
)

func newRunTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedStage marks every article as processed, flipping status to
// discarded, except for a configurable set of URLs that fail
// CheckPrerequisite and a set that error out during ProcessBatch.
type fixedStage struct {
	inputStatus    core.Status
	batchSize      int
	failPrereq     map[string]bool
	failProcessing map[string]bool
}

func (f *fixedStage) Name() string                { return "fixed_stage" }
func (f *fixedStage) InputStatuses() []core.Status { return []core.Status{f.inputStatus} }
func (f *fixedStage) OrderBy() string              { return "published_at ASC" }
func (f *fixedStage) BatchSize() int               { return f.batchSize }
func (f *fixedStage) CheckPrerequisite(a *core.Article) error {
	if f.failPrereq[a.URL] {
		return pipelineerr.ErrPrerequisiteMissing
	}
	return nil
}
func (f *fixedStage) ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error) {
	updates := make(map[string]map[string]any)
	errs := make(map[string]error)
	for _, a := range batch {
		if f.failProcessing[a.URL] {
			errs[a.URL] = pipelineerr.ErrLLMFailure
			continue
		}
		updates[a.URL] = map[string]any{"status": string(core.StatusDiscarded)}
	}
	return updates, errs
}

func TestRunScansFiltersAndPersists(t *testing.T) {
	ctx := context.Background()
	s := newRunTestStore(t)

	for _, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/skip"} {
		if err := s.InsertPending(ctx, &core.Article{URL: url, Title: "t"}); err != nil {
			t.Fatal(err)
		}
	}

	stage := &fixedStage{
		inputStatus: core.StatusPending,
		failPrereq:  map[string]bool{"https://example.com/skip": true},
	}
	stats, err := Run(ctx, s, stage, 0, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Scanned != 3 {
		t.Errorf("Scanned = %d, want 3", stats.Scanned)
	}
	if stats.Processed != 2 {
		t.Errorf("Processed = %d, want 2", stats.Processed)
	}
	if stats.Skipped[pipelineerr.SkipPrerequisiteMissing] != 1 {
		t.Errorf("Skipped[prereq] = %d, want 1", stats.Skipped[pipelineerr.SkipPrerequisiteMissing])
	}

	skipped, err := s.GetByURL(ctx, "https://example.com/skip")
	if err != nil {
		t.Fatal(err)
	}
	if skipped.Status != core.StatusPending {
		t.Errorf("skipped article status = %q, want unchanged pending", skipped.Status)
	}

	processed, err := s.GetByURL(ctx, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if processed.Status != core.StatusDiscarded {
		t.Errorf("processed article status = %q, want discarded", processed.Status)
	}
}

func TestRunRecordsPerArticleErrorsWithoutFailingTheBatch(t *testing.T) {
	ctx := context.Background()
	s := newRunTestStore(t)
	if err := s.InsertPending(ctx, &core.Article{URL: "https://example.com/bad", Title: "t"}); err != nil {
		t.Fatal(err)
	}

	stage := &fixedStage{
		inputStatus:    core.StatusPending,
		failProcessing: map[string]bool{"https://example.com/bad": true},
	}
	stats, err := Run(ctx, s, stage, 0, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Errored != 1 {
		t.Errorf("Errored = %d, want 1", stats.Errored)
	}
}

func TestRunRespectsBatchSizeAndDelay(t *testing.T) {
	ctx := context.Background()
	s := newRunTestStore(t)
	for i := 0; i < 4; i++ {
		url := "https://example.com/" + string(rune('a'+i))
		if err := s.InsertPending(ctx, &core.Article{URL: url, Title: "t"}); err != nil {
			t.Fatal(err)
		}
	}

	stage := &fixedStage{inputStatus: core.StatusPending, batchSize: 2}
	start := time.Now()
	stats, err := Run(ctx, s, stage, 10*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 4 {
		t.Errorf("Processed = %d, want 4", stats.Processed)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("expected at least one inter-batch delay to have elapsed")
	}
}
