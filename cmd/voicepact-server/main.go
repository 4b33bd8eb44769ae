// Package main provides the VoicePact server entry point. It hosts the
// contract, USSD, SMS, payment, voice, audit, and websocket surfaces under
// a single process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/config"
	"github.com/voicepact/voicepact/pkg/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file (optional; env vars override)")
	flag.Parse()

	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	zlog, err := zap.NewProduction()
	if err != nil {
		glog.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("starting voicepact server",
		"listen", cfg.Server.Addr(),
		"database", cfg.Database.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	srv, err := server.New(cfg, logger, zlog)
	if err != nil {
		glog.Fatalf("Failed to build server: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		glog.Fatalf("Server failed: %v", err)
	}
}
