package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ciphera/internal/gateway"
	gatewayhandler "ciphera/internal/gateway/handler"
	gatewaymetrics "ciphera/internal/gateway/metrics"
	"ciphera/internal/gateway/nodeclient"
	"ciphera/internal/platform/config"
	"ciphera/internal/platform/httpserver"
	"ciphera/internal/platform/logger"
	"ciphera/internal/sessiontoken"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	config.LoadDotenv()

	cfg, err := config.GatewayFromEnv()
	if err != nil {
		logger.New("error").Error("invalid gateway configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	nodes := make([]gateway.Node, 0, len(cfg.Nodes))
	for _, ref := range cfg.Nodes {
		nodes = append(nodes, gateway.Node{Name: ref.Name, Client: nodeclient.New(ref.URL)})
	}

	issuer := sessiontoken.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	svc := gateway.New(nodes, gateway.Config{
		SamplesRequired: cfg.SamplesRequired,
		NodeTimeout:     cfg.NodeTimeout,
	}, issuer, log, gatewaymetrics.New())

	router := gatewayhandler.NewRouter(gatewayhandler.New(svc, issuer, log))
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting gateway", "addr", cfg.Addr, "nodes", len(nodes))

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
