// Package config reads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

const (
	DefaultTaskQueue = "storefront-checkout-queue"
)

// Config is shared by the worker, the API server and the CLI
type Config struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	StorefrontURL   string
	StorefrontToken string
	RequestTimeout  time.Duration

	AppOrigin        string
	HostedFormPath   string
	OrdersPath       string
	CloseGraceDelay  time.Duration
	HostEmbedded     bool
	HTTPPort         int
	HealthPort       int
	RedisAddr        string
	MethodsCacheTTL  time.Duration
	DispatchGuardTTL time.Duration

	EncryptionEnabled     bool
	EncryptionKeyFile     string
	EncryptionKeyID       string
	EncryptionRetiredKeys map[string]string

	HostedForm     models.ConfirmationSettings
	RedirectResult models.ConfirmationSettings

	LogLevel       string
	LogDevelopment bool
}

// Load reads every setting, falling back to defaults suitable for local development
func Load() Config {
	hosted := models.DefaultSettings(models.FlowHostedForm)
	hosted.PollInterval = getEnvAsDuration("H2H_POLL_INTERVAL", hosted.PollInterval)
	hosted.ErrorPollInterval = getEnvAsDuration("H2H_ERROR_POLL_INTERVAL", hosted.ErrorPollInterval)
	hosted.RedirectDelay = getEnvAsDuration("REDIRECT_DELAY", hosted.RedirectDelay)
	hosted.NetworkWarnThreshold = getEnvAsInt("NETWORK_WARN_THRESHOLD", hosted.NetworkWarnThreshold)
	hosted.MaxPolls = getEnvAsInt("H2H_MAX_POLLS", hosted.MaxPolls)
	hosted.PollsPerRun = getEnvAsInt("POLLS_PER_RUN", hosted.PollsPerRun)

	result := models.DefaultSettings(models.FlowRedirectResult)
	result.PollInterval = getEnvAsDuration("RESULT_POLL_INTERVAL", result.PollInterval)
	result.ErrorPollInterval = getEnvAsDuration("RESULT_ERROR_POLL_INTERVAL", result.ErrorPollInterval)
	result.RedirectDelay = hosted.RedirectDelay
	result.MaxUnknownPolls = getEnvAsInt("RESULT_MAX_UNKNOWN_POLLS", result.MaxUnknownPolls)
	result.NetworkWarnThreshold = hosted.NetworkWarnThreshold
	result.MaxPolls = getEnvAsInt("RESULT_MAX_POLLS", result.MaxPolls)
	result.PollsPerRun = hosted.PollsPerRun

	return Config{
		TemporalHost:      getEnv("TEMPORAL_HOST", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:         getEnv("TASK_QUEUE", DefaultTaskQueue),

		StorefrontURL:   getEnv("STOREFRONT_URL", "http://localhost:8081/api/v1"),
		StorefrontToken: getEnv("STOREFRONT_TOKEN", ""),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),

		AppOrigin:        getEnv("APP_ORIGIN", "http://localhost:3000"),
		HostedFormPath:   getEnv("HOSTED_FORM_PATH", "/payment/form"),
		OrdersPath:       getEnv("ORDERS_PATH", "/orders"),
		CloseGraceDelay:  getEnvAsDuration("CLOSE_GRACE_DELAY", time.Second),
		HostEmbedded:     getEnvAsBool("HOST_EMBEDDED", false),
		HTTPPort:         getEnvAsInt("HTTP_PORT", 8080),
		HealthPort:       getEnvAsInt("HEALTH_PORT", 8090),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		MethodsCacheTTL:  getEnvAsDuration("METHODS_CACHE_TTL", 5*time.Minute),
		DispatchGuardTTL: getEnvAsDuration("DISPATCH_GUARD_TTL", 30*time.Second),

		EncryptionEnabled:     getEnvAsBool("ENCRYPTION_ENABLED", false),
		EncryptionKeyFile:     getEnv("ENCRYPTION_KEY_FILE", ".encryption.key"),
		EncryptionKeyID:       getEnv("ENCRYPTION_KEY_ID", "default"),
		EncryptionRetiredKeys: getEnvAsMap("ENCRYPTION_RETIRED_KEYS"),

		HostedForm:     hosted,
		RedirectResult: result,

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: getEnvAsBool("LOG_DEVELOPMENT", false),
	}
}

// Settings returns the confirmation settings of a flow
func (c Config) Settings(flow models.Flow) models.ConfirmationSettings {
	if flow == models.FlowRedirectResult {
		return c.RedirectResult
	}
	return c.HostedForm
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsMap parses "id=value,id=value" pairs
func getEnvAsMap(key string) map[string]string {
	result := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k != "" && v != "" {
			result[k] = v
		}
	}
	return result
}
