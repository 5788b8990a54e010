package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/agentarena/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured agents and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Agents:")
			for _, a := range cfg.Agents {
				fmt.Printf("  - %s (%s, type: %s, owner: %s)\n", a.ID, a.Name, a.Type, a.OwnerID)
			}
			fmt.Println("\nTasks:")
			for _, t := range cfg.Tasks {
				fmt.Printf("  - %s [%s] %s on %s\n", t.ID, t.Difficulty, t.Title, t.Environment)
			}
			return nil
		},
	}
}
