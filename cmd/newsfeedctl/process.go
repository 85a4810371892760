package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProcessCmd() *cobra.Command {
	var incremental bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run Stage 1 through Stage 4 over the pending backlog",
		Long: `Runs title triage, content fetch, deduplication, classification, and
personalization in sequence. With --incremental, only the top-priority slice
is processed synchronously and the remainder continues in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), incremental, dryRun)
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "process only the top-priority slice synchronously, continuing the rest in the background")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would run without persisting any stage output")
	return cmd
}

func runProcess(ctx context.Context, incremental, dryRun bool) error {
	orch, st, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if dryRun {
		counts, err := orch.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Println("dry run: no stage output will be persisted")
		fmt.Printf("pending articles eligible for processing: %d\n", counts["pending"])
		return nil
	}

	if incremental {
		results, err := orch.ProcessBatchIncremental(ctx)
		if err != nil {
			return err
		}
		printRunStats(results)
		return nil
	}

	results, err := orch.ProcessBatch(ctx)
	if err != nil {
		return err
	}
	printRunStats(results)
	return nil
}
