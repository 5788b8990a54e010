package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "status <submission-id>",
		Short: "Show a stored submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadPersistedApp()
			if err != nil {
				return err
			}
			rec, err := a.store.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if full {
				return enc.Encode(rec)
			}
			return enc.Encode(rec.RunStatus())
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print the whole record instead of the status view")
	return cmd
}
