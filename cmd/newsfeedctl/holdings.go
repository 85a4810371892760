package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/spf13/cobra"
)

func newHoldingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holdings",
		Short: "Manage the tracked holdings used for personalization",
	}
	cmd.AddCommand(newHoldingsAddCmd())
	cmd.AddCommand(newHoldingsListCmd())
	return cmd
}

func newHoldingsAddCmd() *cobra.Command {
	var label, userID string
	cmd := &cobra.Command{
		Use:   "add <ticker>",
		Short: "Add a tracked holding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHoldingsAdd(cmd.Context(), args[0], label, userID)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "display name for the holding (e.g. company name)")
	cmd.Flags().StringVar(&userID, "user", defaultUserID, "user the holding belongs to")
	return cmd
}

func runHoldingsAdd(ctx context.Context, ticker, label, userID string) error {
	_, st, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	h := core.Holding{
		ID:     uuid.NewString(),
		UserID: userID,
		Ticker: core.NormalizeTicker(ticker),
		Label:  label,
	}
	if err := st.AddHolding(ctx, h); err != nil {
		return err
	}
	fmt.Printf("added holding %s (%s) for user %s\n", h.Ticker, h.Label, h.UserID)
	return nil
}

func newHoldingsListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHoldingsList(cmd.Context(), userID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultUserID, "user whose holdings to list")
	return cmd
}

func runHoldingsList(ctx context.Context, userID string) error {
	_, st, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	holdings, err := st.ListHoldings(ctx, userID)
	if err != nil {
		return err
	}
	for _, h := range holdings {
		fmt.Printf("%-10s %s\n", h.Ticker, h.Label)
	}
	return nil
}
