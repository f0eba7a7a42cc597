package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awaistahir/spotswitch/internal/app"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/day"
	"github.com/awaistahir/spotswitch/internal/logger"
	"github.com/awaistahir/spotswitch/internal/planner"
	"github.com/awaistahir/spotswitch/internal/report"
	"github.com/awaistahir/spotswitch/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dbPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spotswitch",
		Short: "SpotSwitch - Switch devices on during the cheapest spot price hours",
		Long: `SpotSwitch computes a daily on/off schedule per device from Nord Pool
day-ahead prices and drives the devices according to it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.spotswitch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides store.path)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sendSchedulesCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	logger.Setup(cfg.Log)
	return cfg, nil
}

func openService() (*app.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one control cycle: ensure schedules and switch devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			return svc.Planner.Run(ctx, time.Now())
		},
	}
}

func sendSchedulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-schedules",
		Short: "Email today's and tomorrow's schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			return svc.Planner.SendSchedules(ctx, time.Now())
		},
	}
}

func fetchCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch spot prices for a day and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := day.Parse(date, time.Now(), cfg.Location())
			if err != nil {
				return err
			}

			prices, err := app.NewPriceService(cfg, nil).PricesForDay(ctx, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Fetched %d prices\n", len(prices))
			return report.WriteJSON(os.Stdout, prices)
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to fetch (YYYY-MM-DD, 'today' or 'tomorrow')")

	return cmd
}

func planCmd() *cobra.Command {
	var date string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute a schedule from fresh prices without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := day.Parse(date, time.Now(), cfg.Location())
			if err != nil {
				return err
			}

			p := planner.New(planner.Options{
				Constraints: cfg.Schedules,
				Location:    cfg.Location(),
				Prices:      app.NewPriceService(cfg, nil),
			})
			schedule, err := p.Plan(ctx, d)
			if err != nil {
				return err
			}
			return report.WriteTable(os.Stdout, d, schedule, !noColor)
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to plan (YYYY-MM-DD, 'today' or 'tomorrow')")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func showCmd() *cobra.Command {
	var date string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored schedule of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := day.Parse(date, time.Now(), cfg.Location())
			if err != nil {
				return err
			}

			st, err := store.NewStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			schedule, err := st.LoadSchedule(cmd.Context(), d)
			if err != nil {
				return err
			}
			return report.WriteTable(os.Stdout, d, schedule, !noColor)
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to show (YYYY-MM-DD, 'today' or 'tomorrow')")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func exportCmd() *cobra.Command {
	var date string
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored schedule of a day as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := day.Parse(date, time.Now(), cfg.Location())
			if err != nil {
				return err
			}

			st, err := store.NewStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			schedule, err := st.LoadSchedule(cmd.Context(), d)
			if err != nil {
				return err
			}

			if out == "" {
				return report.WriteJSON(os.Stdout, schedule)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.WriteJSON(f, schedule); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("✓ Exported schedule for %s to %s\n", day.Format(d), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to export (YYYY-MM-DD, 'today' or 'tomorrow')")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")

	return cmd
}
