package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/config"
)

var cfg *config.Config

// Persistent overrides; empty leaves the loaded value in place.
var (
	flagSQLitePath string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "activity-cli",
	Short: "Daily activity extraction from chat exports",
	Long:  "Parses timestamped chat messages into per-staff daily activity records, with an optional hosted-model fallback, and serves them over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if flagSQLitePath != "" {
			c.Store.Driver = "sqlite"
			c.Store.SQLitePath = flagSQLitePath
		}
		if flagLogLevel != "" {
			c.Log.Level = flagLogLevel
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Bool("oracle_enabled", cfg.Anthropic.Key != ""),
			zap.Int("event_brokers", len(cfg.Events.Brokers)),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSQLitePath, "db", "", "use the SQLite store at this path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log.level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
