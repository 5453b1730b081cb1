// Package main is the CLI entrypoint for the Runelink home server. The
// serve command loads the TOML configuration, starts one server instance
// per [[servers]] entry (cluster mode when there are several), and handles
// graceful shutdown on SIGINT/SIGTERM. The migrate command manages the
// database schema per instance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/runelink/runelink/internal/api"
	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/config"
	"github.com/runelink/runelink/internal/database"
	"github.com/runelink/runelink/internal/keys"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "migrate":
		if err := runMigrate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		runVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Runelink — Federated Chat Home Server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  runelink <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the configured server instances")
	fmt.Println("  migrate   Run database migrations (up, status)")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Config file:  config.toml (or set RUNELINK_CONFIG)")
}

// configPath returns the config file path from RUNELINK_CONFIG or the
// default "config.toml".
func configPath() string {
	if p := os.Getenv("RUNELINK_CONFIG"); p != "" {
		return p
	}
	return "config.toml"
}

// runServe starts every configured server instance and blocks until a
// shutdown signal or a fatal instance error.
func runServe() error {
	logger := setupLogger("info", "json")

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if len(cfg.Servers) > 1 {
		logger.Info("cluster mode inferred from config",
			slog.Int("instances", len(cfg.Servers)))
	}

	logger.Info("starting Runelink",
		slog.String("version", version),
		slog.String("commit", commit),
	)

	ctx := context.Background()

	// Instances share one HTTP client for federation dials and JWKS fetches.
	httpClient := &http.Client{Timeout: 30 * time.Second}

	instances := make([]*api.Instance, 0, len(cfg.Servers))
	for i := range cfg.Servers {
		serverCfg := &cfg.Servers[i]
		instLogger := logger.With(slog.String("local_host", serverCfg.LocalHost()))

		db, err := database.New(ctx, serverCfg.DatabaseURL, instLogger)
		if err != nil {
			return fmt.Errorf("connecting to database for %s: %w", serverCfg.LocalHost(), err)
		}
		defer db.Close()

		if err := database.MigrateUp(serverCfg.DatabaseURL, instLogger); err != nil {
			return fmt.Errorf("running migrations for %s: %w", serverCfg.LocalHost(), err)
		}

		km, err := keys.LoadOrGenerate(serverCfg.KeyDir)
		if err != nil {
			return fmt.Errorf("loading keys for %s: %w", serverCfg.LocalHost(), err)
		}

		state := app.New(serverCfg, db, httpClient, km, instLogger)
		instances = append(instances, api.NewInstance(state))
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, len(instances))
	for _, inst := range instances {
		inst := inst
		go func() {
			if err := inst.Start(); err != nil {
				errCh <- fmt.Errorf("server %s: %w", inst.State.Config.LocalHostWithPort(), err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, inst := range instances {
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Error("instance shutdown error",
				slog.String("host", inst.State.Config.LocalHost()),
				slog.String("error", err.Error()))
		}
	}

	logger.Info("Runelink stopped")
	return nil
}

// runMigrate handles the migrate subcommand for every configured instance.
func runMigrate() error {
	logger := setupLogger("info", "text")

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	action := "up"
	if len(os.Args) >= 3 {
		action = os.Args[2]
	}

	for i := range cfg.Servers {
		serverCfg := &cfg.Servers[i]
		switch action {
		case "up":
			if err := database.MigrateUp(serverCfg.DatabaseURL, logger); err != nil {
				return fmt.Errorf("migrating %s: %w", serverCfg.LocalHost(), err)
			}
		case "status":
			v, dirty, err := database.MigrateStatus(serverCfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("migration status for %s: %w", serverCfg.LocalHost(), err)
			}
			fmt.Printf("%s: version %d, dirty %v\n", serverCfg.LocalHost(), v, dirty)
		default:
			return fmt.Errorf("unknown migrate action: %s (use: up, status)", action)
		}
	}
	return nil
}

func runVersion() {
	fmt.Printf("Runelink %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
}

// setupLogger creates a slog.Logger with the given level and format.
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
