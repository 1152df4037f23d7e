package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"collabnote/room"
	"collabnote/transport"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	debug := flag.Bool("debug", false, "Enable debug logging")
	shutdownTimeout := flag.Duration("shutdown-timeout", 5*time.Second, "Grace period for in-flight requests during shutdown")
	flag.Parse()

	logger := createLogger(*debug)
	defer logger.Sync()

	registry := room.NewRegistry(logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: transport.NewServer(registry, logger).Handler(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}

		// The HTTP server has stopped accepting connections by the time
		// Shutdown returns, so no new room can be spawned underneath this.
		registry.ShutdownAll()
	}()

	logger.Info("starting collabnote server", zap.Int("port", *port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func createLogger(debug bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := config.Build()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	return logger
}
