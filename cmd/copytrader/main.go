package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vdcapital/copytrader/internal/broker"
	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/copytrade"
	"github.com/vdcapital/copytrader/internal/logger"
	"github.com/vdcapital/copytrader/internal/notify"
	"github.com/vdcapital/copytrader/internal/storage"
	"github.com/vdcapital/copytrader/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Init logger
	log := logger.New(cfg.Logging.Level)
	log.Info("starting copytrader")

	// Init database
	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	// Broker adapters
	brokers := broker.NewRegistry()
	brokers.Register(storage.BrokerTastytrade, broker.NewTastytrade(cfg.Brokers.Tastytrade, log))
	brokers.Register(storage.BrokerSchwab, broker.NewSchwab(cfg.Brokers.Schwab, log))

	// Notification sinks: always persist, optionally push to Telegram.
	sinks := notify.Multi{notify.NewStoreSink(repo, log)}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, notify.NewTelegramSink(cfg, log))
	}

	orch := copytrade.NewOrchestrator(repo, brokers, sinks, cfg, log)
	webServer := web.NewServer(orch, brokers, repo, cfg, log)

	// Start web server in goroutine
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	sinks.Emit(notify.KindInfo, "Copytrader", "Copytrader started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	sinks.Emit(notify.KindInfo, "Copytrader", "Copytrader stopped")
	log.Info("copytrader stopped")
}
