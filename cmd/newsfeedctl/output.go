package main

import (
	"fmt"

	"github.com/peterbitar/newsfeed-pipeline/internal/pipeline"
)

// printRunStats renders each stage's run statistics, including a
// skip-reason breakdown, for operator visibility after a process/rank run.
func printRunStats(results []*pipeline.RunStats) {
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Printf("%-30s scanned=%-5d processed=%-5d errored=%-5d\n", r.StageName, r.Scanned, r.Processed, r.Errored)
		for reason, n := range r.Skipped {
			if n == 0 {
				continue
			}
			fmt.Printf("    skipped[%s]=%d\n", reason, n)
		}
	}
}
