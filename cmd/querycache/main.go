package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentuity/querycache/config"
	"github.com/agentuity/querycache/env"
	"github.com/agentuity/querycache/logger"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// flagEnv maps persistent flags onto the environment variables they override.
var flagEnv = map[string]string{
	"redis-url":       config.EnvRedisURL,
	"database-driver": config.EnvDatabaseDriver,
	"database-url":    config.EnvDatabaseURL,
	"queries-dir":     config.EnvQueriesDir,
	"cache-provider":  config.EnvCacheProvider,
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "querycache",
		Short:         "Run cached SQL queries and maintain the cache tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			files, _ := cmd.Flags().GetStringSlice("env-file")
			if err := env.Load(files...); err != nil {
				return err
			}
			for flag, name := range flagEnv {
				if v := env.FlagOrEnv(cmd, flag, name, ""); v != "" {
					os.Setenv(name, v)
				}
			}
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringSlice("env-file", env.DefaultFiles, "dotenv files to load, later files win")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("redis-url", "", "redis url, enables the REDIS provider")
	flags.String("database-driver", "", "sql driver of the cache tables (sqlite, postgres)")
	flags.String("database-url", "", "dsn of the database queries run on and cache tables live in")
	flags.String("queries-dir", "", "directory holding the query definitions")
	flags.String("cache-provider", "", "provider for queries that name none")

	root.AddCommand(newGCCommand(), newRenderCommand(), newRunCommand())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stderrLogger logs to stderr so command output on stdout stays parseable.
func stderrLogger(cmd *cobra.Command) logger.Logger {
	tty := isatty.IsTerminal(os.Stderr.Fd())
	return logger.NewSinkLogger(os.Stderr, env.LogLevel(cmd), !tty).WithPrefix("[" + cmd.Name() + "]")
}
