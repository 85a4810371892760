package main

import (
	"context"

	"github.com/peterbitar/newsfeed-pipeline/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank",
		Short: "Run Stage 5 (ranking & clustering) over the personalized backlog",
		Long:  `Clusters personalized articles into stories, picks a primary per cluster, and computes the final rank score, independent of Stage 1-4 processing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd.Context())
		},
	}
}

func runRank(ctx context.Context) error {
	orch, st, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := orch.ProcessBatchRanking(ctx)
	if err != nil {
		return err
	}
	printRunStats([]*pipeline.RunStats{stats})
	return nil
}
