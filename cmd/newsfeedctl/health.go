package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show per-status article counts",
		Long:  `Reports how many articles currently sit in each stage of the pipeline's state machine, a quick signal of where the backlog is piling up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context())
		},
	}
}

func runHealth(ctx context.Context) error {
	orch, st, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := orch.Health(ctx)
	if err != nil {
		return err
	}

	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	total := 0
	for _, status := range statuses {
		fmt.Printf("%-20s %d\n", status, counts[status])
		total += counts[status]
	}
	fmt.Printf("%-20s %d\n", "total", total)
	return nil
}
