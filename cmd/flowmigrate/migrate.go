package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/config"
	"github.com/convoflow/flowmigrate/internal/schema"
)

// runMigrate dispatches the "migrate" subcommands. Schema migrations
// are postgres-only; sqlite schemas are created in-process at startup.
func runMigrate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: flowmigrate migrate <up|down|status|version|force|steps> [options]")
		os.Exit(1)
	}

	sub := args[0]

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Driver != "postgres" {
		fmt.Fprintf(os.Stderr, "Schema migrations require the postgres driver (configured: %s).\n", cfg.Database.Driver)
		fmt.Fprintln(os.Stderr, "SQLite deployments create their schema automatically at startup.")
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	migrator, err := schema.NewMigrator(schema.Config{
		DatabaseURL: cfg.Database.URL(),
		LockTimeout: 15 * time.Second,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch sub {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal("migrate up failed", zap.Error(err))
		}
		fmt.Println("Migrations applied.")
	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal("migrate down failed", zap.Error(err))
		}
		fmt.Println("Rolled back one migration.")
	case "steps":
		rest := fs.Args()
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: flowmigrate migrate steps <n>")
			os.Exit(1)
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid step count %q\n", rest[0])
			os.Exit(1)
		}
		if err := migrator.Steps(ctx, n); err != nil {
			logger.Fatal("migrate steps failed", zap.Error(err), zap.Int("steps", n))
		}
		fmt.Printf("Applied %d step(s).\n", n)
	case "force":
		rest := fs.Args()
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: flowmigrate migrate force <version>")
			os.Exit(1)
		}
		v, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid version %q\n", rest[0])
			os.Exit(1)
		}
		if err := migrator.Force(ctx, v); err != nil {
			logger.Fatal("migrate force failed", zap.Error(err), zap.Int("version", v))
		}
		fmt.Printf("Forced schema version to %d.\n", v)
	case "version":
		v, dirty, err := migrator.Version(ctx)
		if err != nil {
			logger.Fatal("migrate version failed", zap.Error(err))
		}
		if v == 0 {
			fmt.Println("No migrations applied.")
			return
		}
		fmt.Printf("Version: %d (dirty: %v)\n", v, dirty)
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			logger.Fatal("migrate status failed", zap.Error(err))
		}
		fmt.Println("Version  Applied  Name")
		for _, st := range statuses {
			mark := " "
			if st.Applied {
				mark = "x"
			}
			if st.Dirty {
				mark = "!"
			}
			fmt.Printf("%7d  [%s]      %s\n", st.Version, mark, st.Name)
		}
		info, err := migrator.Info(ctx)
		if err != nil {
			logger.Fatal("migrate status failed", zap.Error(err))
		}
		fmt.Printf("\n%d applied, %d pending.\n", info.AppliedMigrations, info.PendingMigrations)
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		os.Exit(1)
	}
}
