package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/config"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("WIDGETD_CONFIG"), "YAML config file")
	viewerID := flag.String("viewer", "", "Viewer id (overrides config)")
	storePath := flag.String("store", "", "Instance database path (overrides config)")
	bus := flag.String("bus", "", "IPC bus: session, system or loopback (overrides config)")
	port := flag.String("port", "", "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *viewerID != "" {
		cfg.Viewer.ID = *viewerID
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *bus != "" {
		cfg.IPC.Bus = *bus
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Fields:      map[string]string{"viewer_id": cfg.Viewer.ID},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
