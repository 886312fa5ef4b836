package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbscan/internal/app"
	"arbscan/internal/infra/journal"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	once := flag.Bool("once", false, "run a single scan, print the result table and exit")
	interval := flag.Duration("interval", 0, "scan interval override (e.g. 30s)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("arbscan", version)
		return
	}
	if *interval < 0 {
		fmt.Fprintln(os.Stderr, "interval must not be negative")
		os.Exit(2)
	}

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// System Bootstrapping
	bootstrap := app.NewBootstrap(app.Options{ConfigPath: *configPath, Once: *once, Interval: *interval})
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	if *once {
		result, err := bootstrap.Scanner.ScanOnce(ctx)
		if err != nil {
			slog.Error("❌ Scan failed", slog.Any("error", err))
			os.Exit(1)
		}
		if err := journal.WriteTable(os.Stdout, result); err != nil {
			slog.Error("Failed to print results", slog.Any("error", err))
		}
		return
	}

	start := time.Now()
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("❌ Scanner stopped with error", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}
	slog.Info("👋 Shutting down gracefully...", slog.Duration("uptime", time.Since(start).Round(time.Second)))
}
