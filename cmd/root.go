package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arena",
		Short: "Run and rank agent submissions against sandboxed tasks",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "arena.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newLeaderboardCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newValidateCmd())
	return root
}
