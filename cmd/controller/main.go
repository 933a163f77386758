package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autotrader/internal/bootstrap"
	"autotrader/internal/config"
	"autotrader/internal/mock"
	"autotrader/pkg/logging"
	"autotrader/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/controller.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("controller version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting controller",
		"version", version,
		"store", cfg.Store.Driver,
		"asset_class", cfg.App.AssetClass,
	)

	tel, err := telemetry.Setup(cfg.Telemetry.ServiceName)
	if err != nil {
		logger.Warn("Failed to initialize telemetry", "error", err.Error())
	} else {
		defer func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				logger.Warn("Telemetry shutdown failed", "error", err.Error())
			}
		}()
		if err := telemetry.InitMetrics(telemetry.GetMeter("autotrader")); err != nil {
			logger.Warn("Failed to register metric instruments", "error", err.Error())
		}
	}

	// The broker wire protocol lives outside this binary; the paper broker
	// stands in until a live adapter is injected.
	broker := mock.NewBroker()

	app, err := bootstrap.NewApp(cfg, broker, logger)
	if err != nil {
		logger.Error("Failed to build application", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("Application exited with error", "error", err.Error())
		os.Exit(1)
	}
}
