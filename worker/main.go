package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/aswathylr-builds/storefront-checkout/activities"
	"github.com/aswathylr-builds/storefront-checkout/codec"
	"github.com/aswathylr-builds/storefront-checkout/config"
	"github.com/aswathylr-builds/storefront-checkout/health"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/metrics"
	"github.com/aswathylr-builds/storefront-checkout/storefront"
	"github.com/aswathylr-builds/storefront-checkout/workflows"
)

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

	// Requisites travel through workflow history, so the worker owns the key
	if cfg.EncryptionEnabled {
		keyring, generated, err := codec.LoadKeyring(cfg.EncryptionKeyID, cfg.EncryptionKeyFile, cfg.EncryptionRetiredKeys, true)
		if err != nil {
			logger.Fatal("Failed to load encryption keys", zap.Error(err))
		}
		if generated {
			logger.Warn("Generated new encryption key", zap.String("file", cfg.EncryptionKeyFile))
		}
		clientOptions.DataConverter = codec.NewEncryptionDataConverter(keyring)
		logger.Info("Encryption enabled for worker", zap.String("key_id", keyring.ActiveID()))
	}

	c, err := client.Dial(clientOptions)
	if err != nil {
		logger.Fatal("Unable to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	m := metrics.New()
	backend := storefront.NewClient(cfg.StorefrontURL, cfg.StorefrontToken)
	backend.HTTPClient.Timeout = cfg.RequestTimeout

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(workflows.ConfirmationWorkflow, workflow.RegisterOptions{
		Name: workflows.ConfirmationWorkflowName,
	})
	w.RegisterActivity(activities.NewConfirmationActivities(backend, m))

	logger.Info("Worker starting",
		zap.String("task_queue", cfg.TaskQueue),
		zap.String("temporal_host", cfg.TemporalHost),
		zap.String("storefront_url", cfg.StorefrontURL))

	healthServer := health.NewServer(cfg.HealthPort, logger)
	healthServer.RegisterChecker(health.NewTemporalChecker(c))
	healthServer.RegisterChecker(health.NewHTTPChecker("storefront", cfg.StorefrontURL+"/payment-methods"))
	healthServer.Handle("/metrics", m.Handler())
	if err := healthServer.Start(); err != nil {
		logger.Fatal("Failed to start health check server", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Worker started successfully")
		if err := w.Run(worker.InterruptCh()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal, gracefully stopping")
	case err := <-errCh:
		logger.Error("Worker error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w.Stop()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server shutdown error", zap.Error(err))
	}
	logger.Info("Worker shutdown complete")
}
