// Package app wires configuration, backends and transports into the postbox
// command line.
package app

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *Config
	logger  *slog.Logger
}

// NewRootCmd builds the postbox command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: newViper()}

	root := &cobra.Command{
		Use:   "postbox",
		Short: "Internal messaging service",
		Long: `postbox is a small messaging service: users send a message to one or more
recipients, and each recipient tracks its own read state.

Examples:
  postbox serve --store.driver postgres --store.dsn postgres://localhost/postbox
  postbox migrate
  postbox users create --email alice@example.com --name Alice
  postbox users list`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			slog.SetDefault(logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./config.yaml)")
	flags.String("store.driver", "memory", "store backend: memory, postgres, pgx or mongo")
	flags.String("store.dsn", "", "database connection string")
	flags.String("redis.url", "", "Redis URL for caching and events")
	flags.String("log.level", "info", "log level: debug, info, warn or error")
	flags.String("log.format", "text", "log format: text or json")
	for _, name := range []string{"store.driver", "store.dsn", "redis.url", "log.level", "log.format"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newUsersCmd(a))
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
