package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailroute/mxrouter/internal/config"
	"github.com/mailroute/mxrouter/internal/domain"
	apperrors "github.com/mailroute/mxrouter/internal/errors"
	"github.com/mailroute/mxrouter/internal/handler"
	"github.com/mailroute/mxrouter/internal/resolver"
	"github.com/mailroute/mxrouter/internal/server"
	"github.com/mailroute/mxrouter/internal/service"
	"github.com/mailroute/mxrouter/pkg/logger"
)

const (
	defaultConfigFile = "/etc/postfix/mxrouter.yaml"
	shutdownTimeout   = 30 * time.Second
	gcInterval        = time.Hour
)

func main() {
	configFile := flag.String("config", defaultConfigFile, "path to configuration file")
	listen := flag.String("listen", "", "listen address override (host:port)")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	registry, err := cfg.ToRegistry()
	if err != nil {
		log.WithError(err).WithField("code", string(apperrors.GetErrorCode(err))).Error("Invalid routing configuration")
		os.Exit(1)
	}

	serverCount := 0
	for _, g := range registry.Groups() {
		serverCount += len(g.Servers)
	}
	log.WithFields(map[string]interface{}{
		"listen":         cfg.Listen,
		"groups":         len(registry.Groups()),
		"servers":        serverCount,
		"rules":          len(registry.Rules()),
		"cache_ttl":      cfg.CacheTTLDuration().String(),
		"always_resolve": cfg.AlwaysResolve,
	}).Info("Starting MX router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := resolver.New(cfg.CacheTTLDuration(), log)
	res.StartGC(ctx, gcInterval)

	router := service.NewRouter(registry, res, log)

	serverConfig := server.Config{
		Listen:        cfg.Listen,
		ClientTimeout: cfg.ClientTimeoutDuration(),
	}
	if cfg.RateLimit.Enabled {
		serverConfig.RateLimit = server.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize, log)
		log.Info("Rate limiting enabled")
	}

	srv := server.New(serverConfig, router, log)
	if err := srv.Start(); err != nil {
		log.WithError(err).Error("Failed to start server")
		os.Exit(1)
	}

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminHandler := handler.NewAdminHandler(registry, res, srv.ActiveConnections, log)
		adminServer = &http.Server{
			Addr:         cfg.Admin.Listen,
			Handler:      adminHandler.Router(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.WithField("address", cfg.Admin.Listen).Info("Admin endpoint listening")
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("Admin endpoint failed")
			}
		}()
	}

	if interval := cfg.StatsIntervalDuration(); interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					log.WithFields(map[string]interface{}{
						"lookups":     registry.TotalSelections(),
						"cache_items": res.CacheSize(),
						"connections": srv.ActiveConnections(),
					}).Info("Periodic stats")
				}
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Error stopping server")
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Error shutting down admin endpoint")
		}
	}

	// Final usage report for the operator
	log.Info("Selection statistics:\n" + domain.FormatReport(registry.Snapshot()))
	log.Info("MX router stopped gracefully")
}
