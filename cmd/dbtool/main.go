package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"telemetry-server/internal/app"
	"telemetry-server/internal/config"
	"telemetry-server/internal/db"
	"telemetry-server/internal/logging"
	"telemetry-server/internal/modules/readings/repository"
)

const appName = "dbtool"

var version = "dev"

const usage = `usage: %s <command>
  init   create the readings table and index if missing
  stats  print reading totals as JSON
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewTo(os.Stderr, cfg, version, appName))

	if err := run(context.Background(), cfg, os.Args[1], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, command string, out io.Writer) error {
	switch command {
	case "init", "stats":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	conn, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	switch command {
	case "init":
		_, err = fmt.Fprintf(out, "schema ready at %s\n", cfg.SQLitePath)
		return err
	default:
		stats, err := repository.NewRepository(conn).AggregateStats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
}
