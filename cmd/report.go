package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/agentarena/internal/report"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize stored submissions across all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadPersistedApp()
			if err != nil {
				return err
			}
			return report.Generate(context.Background(), a.catalog, a.store, a.board, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}

func newLeaderboardCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "leaderboard <task-id>",
		Short: "Rank stored submissions for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadPersistedApp()
			if err != nil {
				return err
			}
			entries, err := a.board.Build(context.Background(), args[0])
			if err != nil {
				return err
			}
			return report.WriteLeaderboard(entries, format, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, markdown, json)")
	return cmd
}

// loadPersistedApp loads an app for commands that only read stored
// submissions, which requires store.dir.
func loadPersistedApp() (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if a.cfg.Store.Dir == "" {
		return nil, fmt.Errorf("store.dir is not set in %s; submissions are only kept in memory", cfgFile)
	}
	return a, nil
}
