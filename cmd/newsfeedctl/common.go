package main

import (
	"context"
	"fmt"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/llmclient"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipeline"
	"github.com/peterbitar/newsfeed-pipeline/internal/store"
)

// defaultUserID mirrors the pipeline's single-tenant default; the system is
// explicitly out of scope for multi-tenant isolation.
const defaultUserID = "1"

// buildOrchestrator opens the article store and LLM client named by the
// loaded config and wires them into an Orchestrator. Callers are
// responsible for closing the returned store.
func buildOrchestrator(ctx context.Context) (*pipeline.Orchestrator, *store.Store, error) {
	cfg := config.Get()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	llm, err := llmclient.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("initializing LLM client: %w", err)
	}

	return pipeline.NewOrchestrator(st, llm, cfg), st, nil
}
