package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, DefaultTaskQueue, cfg.TaskQueue)
	assert.Equal(t, 5*time.Second, cfg.Settings(models.FlowHostedForm).PollInterval)
	assert.Equal(t, 3*time.Second, cfg.Settings(models.FlowRedirectResult).PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Settings(models.FlowRedirectResult).ErrorPollInterval)
	assert.Equal(t, 120, cfg.Settings(models.FlowRedirectResult).MaxUnknownPolls)
	assert.Zero(t, cfg.Settings(models.FlowHostedForm).MaxUnknownPolls)
	assert.Equal(t, 1200, cfg.Settings(models.FlowRedirectResult).MaxPolls)
	assert.Equal(t, 720, cfg.Settings(models.FlowHostedForm).MaxPolls)
	assert.Equal(t, 500, cfg.Settings(models.FlowRedirectResult).PollsPerRun)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("H2H_POLL_INTERVAL", "2s")
	t.Setenv("RESULT_MAX_UNKNOWN_POLLS", "10")
	t.Setenv("RESULT_MAX_POLLS", "40")
	t.Setenv("POLLS_PER_RUN", "100")
	t.Setenv("HOST_EMBEDDED", "true")
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.HostedForm.PollInterval)
	assert.Equal(t, 10, cfg.RedirectResult.MaxUnknownPolls)
	assert.Equal(t, 40, cfg.RedirectResult.MaxPolls)
	assert.Equal(t, 100, cfg.RedirectResult.PollsPerRun)
	assert.Equal(t, 100, cfg.HostedForm.PollsPerRun)
	assert.True(t, cfg.HostEmbedded)
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLoad_RetiredKeys(t *testing.T) {
	t.Setenv("ENCRYPTION_RETIRED_KEYS", "k1=/keys/k1.key, k0=/keys/k0.key,broken")

	cfg := Load()

	assert.Equal(t, map[string]string{"k1": "/keys/k1.key", "k0": "/keys/k0.key"}, cfg.EncryptionRetiredKeys)
}
