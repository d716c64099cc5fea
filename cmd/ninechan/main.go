package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ninechan-dev/ninechan/internal/router"
	"github.com/ninechan-dev/ninechan/internal/setup"
	"github.com/ninechan-dev/ninechan/shared/config"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	// live sockets set their own deadlines after the upgrade
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	var configFolder string
	flag.StringVar(&configFolder, "config_folder", "config", "path to folder with configs")
	flag.Parse()

	cfg := config.MustLoad(configFolder)
	logger.Initialize(cfg.Public.LogLevel, cfg.Public.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := setup.SetupDependencies(ctx, cfg)
	if err != nil {
		logger.Log.Error("failed to set up dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Cleanup()
	deps.Start(ctx)

	server := &http.Server{
		Addr:              cfg.Public.HttpAddr,
		Handler:           router.New(deps),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	go func() {
		logger.Log.Info("server started", "addr", server.Addr, "storage", cfg.Public.Storage.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("graceful shutdown failed", "error", err)
	}
}
