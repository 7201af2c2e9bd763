package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"siemlite/internal/alerts"
	"siemlite/internal/api"
	"siemlite/internal/config"
	"siemlite/internal/engine"
	"siemlite/internal/logging"
	"siemlite/internal/metrics"
	"siemlite/internal/monitor"
	"siemlite/internal/storage"
)

var version = "dev"

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML or JSON config file")
		logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		writeTo    = flag.String("write-config", "", "Write the effective config to this path and exit")
	)
	flag.Parse()

	if *writeTo != "" {
		if err := writeConfig(*configPath, *writeTo); err != nil {
			fmt.Fprintf(os.Stderr, "siemlite: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := run(*configPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "siemlite: %v\n", err)
		os.Exit(1)
	}
}

// writeConfig saves the config that run would start with, defaults applied.
func writeConfig(configPath, dest string) error {
	cfgManager, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Save(dest, cfgManager.Get()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func run(configPath, logLevel string) error {
	cfgManager, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgManager.Get()
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, levelVar := logging.NewLogger(level, cfg.LogFormat, os.Stderr)

	archive, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if archive != nil {
		if err := archive.Init(context.Background()); err != nil {
			_ = archive.Close()
			return fmt.Errorf("init storage: %w", err)
		}
		defer archive.Close()
		logger.Info("alert archive enabled", "driver", cfg.Storage.Driver)
	}

	collectors := metrics.NewCollectors()
	sources := metrics.NewSourceStore(cfg.Metrics.SourceLimit)
	recent := alerts.NewStore(cfg.Alerts.StoreLimit)
	sink := alerts.NewSink(alerts.SinkOptions{
		LogPath: cfg.Alerts.LogPath,
		Console: os.Stdout,
		Logger:  logger,
		Recent:  recent,
		Archive: archive,
		Metrics: collectors,
	})
	eng := engine.NewEngine(cfg, logger, sink, sources, collectors)

	mon := monitor.New(monitor.Options{
		Config:   cfgManager,
		Engine:   eng,
		Sink:     sink,
		Archive:  archive,
		Metrics:  collectors,
		Logger:   logger,
		LevelVar: levelVar,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api.Start(ctx, cfgManager, api.Deps{
		Monitor: mon,
		Alerts:  recent,
		Sources: sources,
		Metrics: collectors,
		Archive: archive,
	}, logger, version)

	return mon.Run(ctx)
}
