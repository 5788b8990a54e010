package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config and probe the live backend",
		Long:  "Load and validate the config, then report which LLM providers and environment runtimes the live backend could use. Runs fall back to the simulated backend when the probe fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fmt.Printf("Config %s: %d agents, %d tasks, %d trials\n", cfgFile, len(a.cfg.Agents), len(a.cfg.Tasks), a.cfg.Trials)
			fmt.Printf("Live backend enabled: %v\n", a.cfg.Backend.UseLive)
			if !probe {
				return nil
			}

			timeout := time.Duration(a.cfg.Backend.ProbeTimeoutSeconds) * time.Second
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			health := a.generators.Health(ctx)
			names := make([]string, 0, len(health))
			for name := range health {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println("\nLLM providers:")
			if len(names) == 0 {
				fmt.Println("  (none with credentials)")
			}
			for _, name := range names {
				fmt.Printf("  - %s: %s\n", name, healthWord(health[name]))
			}
			fmt.Printf("\nEnvironments: %s\n", healthWord(a.provisioner.Health(ctx)))
			fmt.Printf("Live backend: %s\n", healthWord(a.live.Health(ctx)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", true, "probe providers and the container runtime")
	return cmd
}

func healthWord(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}
