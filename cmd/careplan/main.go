// Command careplan runs the care-record extraction pipeline: a queue worker plus
// one-shot commands for processing, ingest, export and maintenance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/care-records/internal/common"
)

type rootFlags struct {
	logFormat string
	logLevel  string
	dbURL     string
	sqlite    string
	migrate   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	cfg := common.LoadConfig()

	root := &cobra.Command{
		Use:           "careplan",
		Short:         "Care-record document extraction and medication reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(rf.logFormat, rf.logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			if rf.dbURL != "" {
				cfg.Database.DSN = rf.dbURL
			}
			if rf.sqlite != "" {
				cfg.Database.SQLitePath = rf.sqlite
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&rf.logFormat, "log-format", "text", "log output format: text or json")
	pf.StringVar(&rf.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn or error")
	pf.StringVar(&rf.dbURL, "db", "", "Postgres DSN (overrides DB_URL)")
	pf.StringVar(&rf.sqlite, "sqlite", "", "SQLite file used when no Postgres DSN is set (overrides SQLITE_PATH)")
	pf.BoolVar(&rf.migrate, "migrate", false, "create missing tables before running")

	root.AddCommand(
		workerCmd(cfg, &rf),
		processCmd(cfg, &rf),
		enqueueCmd(cfg, &rf),
		watchCmd(cfg, &rf),
		exportCmd(cfg, &rf),
		sweepCmd(cfg, &rf),
		migrateCmd(cfg),
	)
	return root
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func requireDB(cfg *common.Config) error {
	if cfg.Database.DSN == "" && cfg.Database.SQLitePath == "" {
		return common.NewAppError(common.KindConfig, "DB_URL or SQLITE_PATH is required", common.ErrInvalidInput)
	}
	return nil
}

