package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/aswathylr-builds/storefront-checkout/api"
	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/codec"
	"github.com/aswathylr-builds/storefront-checkout/config"
	"github.com/aswathylr-builds/storefront-checkout/gateway"
	"github.com/aswathylr-builds/storefront-checkout/health"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/metrics"
	"github.com/aswathylr-builds/storefront-checkout/storefront"
)

const sessionIdleTimeout = 30 * time.Minute

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	clientOptions := client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.NewTemporalLogger(logger),
	}
	if cfg.EncryptionEnabled {
		keyring, _, err := codec.LoadKeyring(cfg.EncryptionKeyID, cfg.EncryptionKeyFile, cfg.EncryptionRetiredKeys, false)
		if err != nil {
			logger.Fatal("Failed to load encryption keys", zap.Error(err))
		}
		clientOptions.DataConverter = codec.NewEncryptionDataConverter(keyring)
		logger.Info("Encryption enabled for API server", zap.String("key_id", keyring.ActiveID()))
	}

	c, err := client.Dial(clientOptions)
	if err != nil {
		logger.Fatal("Unable to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	m := metrics.New()
	newBackend := func(token string) *storefront.Client {
		backend := storefront.NewClient(cfg.StorefrontURL, token)
		backend.HTTPClient.Timeout = cfg.RequestTimeout
		return backend
	}

	healthServer := health.NewServer(cfg.HealthPort, logger)
	healthServer.RegisterChecker(health.NewTemporalChecker(c))
	healthServer.RegisterChecker(health.NewHTTPChecker("storefront", cfg.StorefrontURL+"/payment-methods"))
	healthServer.Handle("/metrics", m.Handler())

	var (
		guard checkout.DispatchGuard = checkout.NewMemoryGuard()
		cache *redis.Client
	)
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer cache.Close()
		guard = checkout.NewRedisGuard(cache, cfg.DispatchGuardTTL)
		healthServer.RegisterChecker(health.NewRedisChecker(cache, true))
		logger.Info("Using Redis for dispatch guard and payment method cache", zap.String("addr", cfg.RedisAddr))
	}

	srv := api.NewServer(api.Deps{
		BackendFor: func(token string) checkout.Backend {
			return newBackend(token)
		},
		Methods:       checkout.NewMethodCatalog(newBackend(cfg.StorefrontToken), cache, cfg.MethodsCacheTTL, logger, m),
		Guard:         guard,
		Confirmations: api.NewTemporalConfirmations(c, cfg.TaskQueue),
		Router: gateway.Options{
			AppOrigin:  cfg.AppOrigin,
			FormPath:   cfg.HostedFormPath,
			CloseGrace: cfg.CloseGraceDelay,
		},
		Embedded: cfg.HostEmbedded,
		Settings: cfg.Settings,
		Timeout:  cfg.RequestTimeout + 5*time.Second,
		Logger:   logger,
		Metrics:  m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.SweepSessions(ctx, sessionIdleTimeout)

	if err := healthServer.Start(); err != nil {
		logger.Fatal("Failed to start health check server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("API server starting", zap.Int("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("API server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down API server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server forced to shutdown", zap.Error(err))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server shutdown error", zap.Error(err))
	}
	logger.Info("API server exited")
}
