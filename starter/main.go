package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/aswathylr-builds/storefront-checkout/api"
	"github.com/aswathylr-builds/storefront-checkout/codec"
	"github.com/aswathylr-builds/storefront-checkout/config"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

var signals = map[string]string{
	"paid":     models.SignalPaid,
	"retry":    models.SignalRetry,
	"confirm":  models.SignalConfirm,
	"teardown": models.SignalTeardown,
}

func main() {
	action := flag.String("action", "query", "Action: start-hosted, start-result, paid, retry, confirm, teardown, query")
	orderID := flag.String("order-id", "", "Order ID")
	formQuery := flag.String("form", "", "Hosted payment form URL or query string (start-hosted)")
	hint := flag.String("status", "", "Outcome flag of the gateway result URL: success, failed or empty (start-result)")
	hash := flag.String("hash", "", "Order hash used for manual confirmation")
	flag.Parse()

	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	clientOptions := client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.NewTemporalLogger(logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))),
	}
	if cfg.EncryptionEnabled {
		keyring, _, err := codec.LoadKeyring(cfg.EncryptionKeyID, cfg.EncryptionKeyFile, cfg.EncryptionRetiredKeys, false)
		if err != nil {
			logger.Fatal("Failed to load encryption keys", zap.Error(err))
		}
		clientOptions.DataConverter = codec.NewEncryptionDataConverter(keyring)
	}

	c, err := client.Dial(clientOptions)
	if err != nil {
		logger.Fatal("Unable to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	confirmations := api.NewTemporalConfirmations(c, cfg.TaskQueue)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch *action {
	case "start-hosted":
		req, err := hostedRequest(*formQuery, cfg)
		if err != nil {
			logger.Fatal("Invalid payment form", zap.Error(err))
		}
		if err := confirmations.Start(ctx, req); err != nil {
			logger.Fatal("Unable to start confirmation", zap.Error(err))
		}
		printNext(logger, req.OrderID)
	case "start-result":
		if *orderID == "" {
			logger.Fatal("order-id is required for start-result")
		}
		req := models.ConfirmationRequest{
			OrderID:  *orderID,
			Hash:     *hash,
			Flow:     models.FlowRedirectResult,
			Hint:     models.ResultHint(strings.ToLower(*hint)),
			Settings: cfg.Settings(models.FlowRedirectResult),
		}
		if err := confirmations.Start(ctx, req); err != nil {
			logger.Fatal("Unable to start confirmation", zap.Error(err))
		}
		printNext(logger, req.OrderID)
	case "query":
		if *orderID == "" {
			logger.Fatal("order-id is required for query")
		}
		snapshot, err := confirmations.State(ctx, *orderID)
		if err != nil {
			logger.Fatal("Unable to query confirmation", zap.Error(err))
		}
		out, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(out))
	default:
		signal, ok := signals[*action]
		if !ok {
			logger.Fatal("Unknown action", zap.String("action", *action))
		}
		if *orderID == "" {
			logger.Fatal("order-id is required for signal operations")
		}
		if err := confirmations.Signal(ctx, *orderID, signal); err != nil {
			logger.Fatal("Unable to signal confirmation", zap.Error(err))
		}
		logger.Info("Signal sent", zap.String("signal", signal), zap.String("order_id", *orderID))
	}
}

func hostedRequest(form string, cfg config.Config) (models.ConfirmationRequest, error) {
	raw := form
	if u, err := url.Parse(form); err == nil && u.RawQuery != "" {
		raw = u.RawQuery
	}
	query, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return models.ConfirmationRequest{}, err
	}
	requisites, err := models.ParseRequisites(query)
	if err != nil {
		return models.ConfirmationRequest{}, err
	}
	return models.ConfirmationRequest{
		OrderID:    requisites.OrderID,
		Hash:       requisites.Hash,
		Flow:       models.FlowHostedForm,
		ExpiresAt:  requisites.ExpiresAt,
		Requisites: requisites,
		Settings:   cfg.Settings(models.FlowHostedForm),
	}, nil
}

func printNext(logger *zap.Logger, orderID string) {
	logger.Info("Started confirmation", zap.String("workflow_id", models.ConfirmationWorkflowID(orderID)))
	fmt.Println()
	fmt.Println("To follow it, run:")
	fmt.Printf("  go run ./starter -action=query -order-id=%s\n", orderID)
	fmt.Println("To report the transfer as done, run:")
	fmt.Printf("  go run ./starter -action=paid -order-id=%s\n", orderID)
	fmt.Println("To confirm manually, run:")
	fmt.Printf("  go run ./starter -action=confirm -order-id=%s\n", orderID)
}
