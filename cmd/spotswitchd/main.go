package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awaistahir/spotswitch/internal/app"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	var cfgFile string
	var addr string
	var dbPath string

	rootCmd := &cobra.Command{
		Use:          "spotswitchd",
		Short:        "SpotSwitch daemon: control cycle scheduler with dashboard API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Store.Path = dbPath
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			logger.Setup(cfg.Log)
			log := logger.New("spotswitchd")

			svc, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Infof("Database: %s", cfg.Store.Path)
			log.Infof("Access the dashboard API at http://localhost%s/api/schedule", cfg.HTTP.Addr)

			return svc.Run(ctx, cfg.HTTP.Addr, cfg.Daemon.Interval)
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.spotswitch/config.yaml)")
	rootCmd.Flags().StringVarP(&addr, "addr", "a", "", "HTTP listen address (overrides http.addr)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "database path (overrides store.path)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
