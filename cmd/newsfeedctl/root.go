package main

import (
	"fmt"
	"os"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/logger"
	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd builds the newsfeedctl root command and wires its subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newsfeedctl",
		Short: "Operate the personalized financial news pipeline",
		Long: `newsfeedctl drives the financial news pipeline end to end:

  newsfeedctl ingest <file.json>   load candidate articles as pending
  newsfeedctl process               run Stage 1-4 once over the backlog
  newsfeedctl rank                  run Stage 5 (ranking & clustering)
  newsfeedctl health                show per-status counts
  newsfeedctl status                live TUI dashboard`,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .newsfeed-pipeline.yaml)")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newProcessCmd())
	root.AddCommand(newRankCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newHoldingsCmd())

	cobra.OnInitialize(initConfig)
	return root
}

func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
		return
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Pretty)
}
