// Command newsfeedctl is the operator control surface for the pipeline: it
// ingests candidate articles, drives Stage 1-4 processing, re-ranks the
// personalized backlog, and reports health as per-status article counts.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
