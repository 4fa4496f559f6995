package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/choraleia/daydigest/pkg/config"
	"github.com/choraleia/daydigest/pkg/db"
	"github.com/choraleia/daydigest/pkg/service"
	"github.com/choraleia/daydigest/pkg/utils"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "daydigest",
		Short:         "Daydigest - record AI assistant dialogues and summarize them daily",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.daydigest/config.yaml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(analyzeCmd(&configPath))
	rootCmd.AddCommand(reconcileCmd(&configPath))
	rootCmd.AddCommand(initConfigCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily summary scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func analyzeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [date]",
		Short: "Summarize one day (YYYY-MM-DD), overwriting an existing summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := args[0]
			if !service.ValidDate(date) {
				return service.ErrInvalidDate
			}
			app, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			outcome, err := app.Analyzer.SummarizeDate(cmd.Context(), date, db.TriggerManual)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", date, outcome)
			return nil
		},
	}
}

func reconcileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Summarize every day that has dialogues but no summary yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			dates, err := app.Analyzer.Reconcile(cmd.Context())
			for _, d := range dates {
				fmt.Println(d)
			}
			if len(dates) == 0 && err == nil {
				fmt.Println("Nothing to reconcile")
			}
			return err
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.EnsureDefaultConfig()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

// setup loads config, initializes logging and builds the App.
func setup(ctx context.Context, configPath string) (*App, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	return NewApp(ctx, cfg)
}

func runServe(ctx context.Context, configPath string) error {
	app, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := utils.GetLogger()

	server := NewServer(app)
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		return err
	}

	app.Analyzer.Start(ctx)

	<-ctx.Done()
	logger.Info("Shutting down")
	app.Analyzer.Stop()
	return nil
}
