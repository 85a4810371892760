package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "Load candidate articles from a JSON file as pending",
		Long:  `Reads a JSON array of articles (url, title, published_at, source_name at minimum) and inserts each as pending, skipping URLs already present.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args[0])
		},
	}
	return cmd
}

func runIngest(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var articles []*core.Article
	if err := json.Unmarshal(raw, &articles); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	orch, st, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := orch.Ingest(ctx, articles)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d articles from %s\n", n, path)
	return nil
}
