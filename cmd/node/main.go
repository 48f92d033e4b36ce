package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ciphera/internal/extractor"
	"ciphera/internal/node"
	nodehandler "ciphera/internal/node/handler"
	nodemetrics "ciphera/internal/node/metrics"
	"ciphera/internal/node/samples"
	"ciphera/internal/node/store"
	"ciphera/internal/platform/config"
	"ciphera/internal/platform/httpserver"
	"ciphera/internal/platform/logger"
)

func main() {
	config.LoadDotenv()

	cfg, err := config.VerifierFromEnv()
	if err != nil {
		logger.New("error").Error("invalid node configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	st := store.NewFileStore(cfg.StorePath)
	m := nodemetrics.New()

	var svc *node.Service
	switch cfg.Strategy {
	case "signature":
		svc = node.NewSignatureService(st, log, m)
	default:
		svc = node.NewEmbeddingService(
			st,
			samples.NewStorage(cfg.SamplesDir),
			extractor.NewHTTPClient(cfg.ExtractorURL),
			cfg.Tolerance,
			log,
			m,
		)
	}

	router := nodehandler.NewRouter(nodehandler.New(svc, log))
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting verifier node", "addr", cfg.Addr, "strategy", cfg.Strategy)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
