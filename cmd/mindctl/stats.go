package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
)

func newStatsCmd() *cobra.Command {
	var configPath, source string
	var prune time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the latest persisted analytics snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, configPath, func(ctx context.Context, db *postgres.Client) error {
				store := aggregator.NewStore(db, source)
				if prune > 0 {
					n, err := store.Prune(ctx, time.Now().Add(-prune))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d snapshots older than %s\n", n, prune)
				}
				stats, err := store.LatestSnapshot(ctx)
				if err != nil {
					return err
				}
				if stats == nil {
					return fmt.Errorf("no snapshots for source %q", source)
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "configs/development.yaml", "config file with postgres settings")
	cmd.Flags().StringVar(&source, "source", "classifier", "snapshot source (classifier or worker)")
	cmd.Flags().DurationVar(&prune, "prune", 0, "first delete snapshots older than this")
	return cmd
}
