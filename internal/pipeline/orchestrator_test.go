package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

func newTestOrchestrator(t *testing.T, llm *fakeLLM) *Orchestrator {
	t.Helper()
	st := newRunTestStore(t)
	cfg := &config.Config{Thresholds: config.DefaultThresholds()}
	cfg.Pipeline.FetchConcurrency = 2
	cfg.Pipeline.DelayBetweenBatchesMS = 0
	cfg.App.Profile = "balanced"
	return NewOrchestrator(st, llm, cfg)
}

func TestOrchestratorIngestSkipsDuplicateURLs(t *testing.T) {
	orch := newTestOrchestrator(t, &fakeLLM{})
	ctx := context.Background()

	articles := []*core.Article{
		{URL: "https://example.com/a", Title: "t"},
		{URL: "https://example.com/a", Title: "t2"},
		{URL: "https://example.com/b", Title: "t"},
	}
	n, err := orch.Ingest(ctx, articles)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 3 {
		t.Errorf("Ingest reported %d, want 3 (insert attempts, not unique rows)", n)
	}

	counts, err := orch.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if counts[string(core.StatusPending)] != 2 {
		t.Errorf("pending count = %d, want 2 unique URLs", counts[string(core.StatusPending)])
	}
}

func TestOrchestratorProcessBatchDiscardsIrrelevantTitle(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`[{"url":"https://example.com/a","title_relevance":0,"title_event_type":"other"}]`,
	}}
	orch := newTestOrchestrator(t, llm)
	ctx := context.Background()

	if _, err := orch.Ingest(ctx, []*core.Article{{URL: "https://example.com/a", Title: "Local weather forecast"}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := orch.ProcessBatch(ctx); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	got, err := orch.Store.GetByURL(ctx, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.StatusDiscarded {
		t.Errorf("status = %q, want discarded after Stage 1 rejects irrelevant title", got.Status)
	}
}
