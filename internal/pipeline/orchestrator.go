package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/llmclient"
	"github.com/peterbitar/newsfeed-pipeline/internal/logger"
	"github.com/peterbitar/newsfeed-pipeline/internal/store"
)

// defaultUserID is the single default user this pipeline serves; the system
// is explicitly out of scope for multi-tenant isolation.
const defaultUserID = "1"

// Orchestrator is the Pipeline Orchestrator (component C14): it owns the two
// entry points a caller actually uses — processing a batch of candidate
// articles through Stage 1-4, and ranking the personalized backlog through
// Stage 5 — and wires each stage with the store, LLM client, and threshold
// config they need.
type Orchestrator struct {
	Store *store.Store
	LLM   llmclient.Client
	Cfg   *config.Config
}

// NewOrchestrator builds an Orchestrator from an already-open store, LLM
// client, and config.
func NewOrchestrator(st *store.Store, llm llmclient.Client, cfg *config.Config) *Orchestrator {
	return &Orchestrator{Store: st, LLM: llm, Cfg: cfg}
}

// Ingest inserts new pending articles. Duplicate URLs already present are
// silently skipped by the store's upsert-with-no-op-on-conflict behavior.
func (o *Orchestrator) Ingest(ctx context.Context, articles []*core.Article) (int, error) {
	n := 0
	for _, a := range articles {
		if err := o.Store.InsertPending(ctx, a); err != nil {
			return n, fmt.Errorf("ingesting %s: %w", a.URL, err)
		}
		n++
	}
	return n, nil
}

// ProcessBatch runs Stage 1, Stage 2, the deduplicator, Stage 3 and Stage 4
// once each, in that order, over the articles eligible for each stage at the
// time it starts, pausing delayBetweenBatches between each stage's internal
// batches, and returns the per-stage run statistics in pipeline order.
// Articles whose fetch or LLM call failed without exhausting their retries
// keep their status and are picked up again by a later call.
func (o *Orchestrator) ProcessBatch(ctx context.Context) ([]*RunStats, error) {
	return o.processBatch(ctx, 0)
}

// ProcessBatchIncremental runs Stage 1 synchronously over only the topN
// highest-priority pending articles (by published_at, the best proxy
// available before Stage 1 has scored anything), then continues processing
// the remainder of the pipeline — including those topN articles through
// Stage 2-4 — in the background so a caller gets an initial responsive
// batch without waiting on the full backlog.
func (o *Orchestrator) ProcessBatchIncremental(ctx context.Context) ([]*RunStats, error) {
	topN := o.Cfg.Pipeline.IncrementalTopN
	if topN <= 0 {
		return o.ProcessBatch(ctx)
	}

	holdings, err := o.Store.ListHoldings(ctx, defaultUserID)
	if err != nil {
		return nil, fmt.Errorf("loading holdings: %w", err)
	}

	stage1 := &Stage1{LLM: o.LLM, Thresholds: o.Cfg.Thresholds, Holdings: holdings}
	first, err := Run(ctx, o.Store, stage1, o.delay(), topN)
	if err != nil {
		return nil, err
	}
	stats := []*RunStats{first}

	go func() {
		bgCtx := context.Background()
		if _, err := o.processBatch(bgCtx, 0); err != nil {
			logger.Error("background incremental continuation failed", err, nil)
		}
	}()

	return stats, nil
}

// ProcessBatchRanking is the separate Stage 5 entry point (C14): ranking is
// decoupled from Stage 1-4 processing so the feed can be re-ranked (e.g.
// after a holdings change) without reprocessing any article content.
func (o *Orchestrator) ProcessBatchRanking(ctx context.Context) (*RunStats, error) {
	stage5 := &Stage5{Thresholds: o.Cfg.Thresholds}
	return Run(ctx, o.Store, stage5, o.delay(), 0)
}

func (o *Orchestrator) processBatch(ctx context.Context, limit int) ([]*RunStats, error) {
	holdings, err := o.Store.ListHoldings(ctx, defaultUserID)
	if err != nil {
		return nil, fmt.Errorf("loading holdings: %w", err)
	}

	profile := core.Profile(o.Cfg.App.Profile)
	if !core.ValidProfiles[profile] {
		profile = core.ProfileBalanced
	}

	stages := []Stage{
		&Stage1{LLM: o.LLM, Thresholds: o.Cfg.Thresholds, Holdings: holdings},
		&Stage2{Thresholds: o.Cfg.Thresholds, Concurrency: o.Cfg.Pipeline.FetchConcurrency},
		&Dedup{Store: o.Store, Thresholds: o.Cfg.Thresholds},
		&Stage3{LLM: o.LLM, Thresholds: o.Cfg.Thresholds},
		&Stage4{Thresholds: o.Cfg.Thresholds, Holdings: holdings, Profile: profile},
	}

	var results []*RunStats
	for _, stage := range stages {
		stats, err := Run(ctx, o.Store, stage, o.delay(), limit)
		results = append(results, stats)
		if err != nil {
			return results, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		logger.Info("stage complete", map[string]any{
			"stage": stats.StageName, "scanned": stats.Scanned, "processed": stats.Processed, "errored": stats.Errored,
		})
	}
	return results, nil
}

func (o *Orchestrator) delay() time.Duration {
	return time.Duration(o.Cfg.Pipeline.DelayBetweenBatchesMS) * time.Millisecond
}

// Health returns per-status article counts, matching the admin control
// surface's health operation.
func (o *Orchestrator) Health(ctx context.Context) (map[string]int, error) {
	return o.Store.HealthCounts(ctx)
}
