package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/agentarena/internal/config"
	"github.com/signalnine/agentarena/internal/server"
)

var (
	flagAddr  string
	flagWatch bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the submission API",
		RunE:  serve,
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default: server.addr from config)")
	cmd.Flags().BoolVar(&flagWatch, "watch", true, "reload agents, tasks and the backend flag when the config changes")
	return cmd
}

func serve(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagWatch {
		w, err := config.NewWatcher(cfgFile)
		if err != nil {
			log.Printf("warning: config hot reload disabled: %v", err)
		} else {
			go func() {
				if err := w.Run(ctx, a.reload); err != nil {
					log.Printf("warning: config watcher stopped: %v", err)
				}
			}()
		}
	}

	addr := flagAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := server.New(server.Options{
		Manager:      a.manager,
		Leaderboard:  a.board,
		Catalog:      a.catalog,
		Selector:     a.selector,
		AllowOrigins: a.cfg.Server.AllowOrigins,
	})
	runErr := srv.Run(ctx, addr)
	if err := a.close(10 * time.Second); err != nil {
		log.Printf("warning: %v", err)
	}
	return runErr
}
