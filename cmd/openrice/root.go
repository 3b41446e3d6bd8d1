package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/config"
	"github.com/JakeFAU/openrice-crawler/internal/logging"
)

// app carries state shared by every subcommand once the root pre-run hook
// has loaded configuration.
type app struct {
	cfgPath string
	envFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openrice",
		Short: "Extract OpenRice Hong Kong restaurant listings into tabular datasets.",
		Long: `openrice crawls OpenRice district directories in a headless browser,
extracts restaurant listings, and writes JSON and CSV datasets. Follow-up
subcommands classify, cluster, and summarize a written dataset.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	cmd.AddCommand(
		newCrawlCmd(a),
		newClassifyCmd(a),
		newClusterCmd(a),
		newSummaryCmd(a),
	)
	return cmd
}

func (a *app) init() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
