package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
)

// TemporalChecker checks Temporal server connectivity
type TemporalChecker struct {
	client client.Client
}

func NewTemporalChecker(c client.Client) *TemporalChecker {
	return &TemporalChecker{client: c}
}

func (t *TemporalChecker) Name() string {
	return "temporal"
}

func (t *TemporalChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("Temporal connection failed: %v", err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{
		Status:  StatusHealthy,
		Message: "Connected to Temporal server",
		Latency: latency.String(),
	}
}

// HTTPChecker checks an HTTP endpoint, usually the storefront backend.
// Any answer below 500 means the backend is up; 5xx degrades.
type HTTPChecker struct {
	name   string
	url    string
	client *http.Client
}

func NewHTTPChecker(name, url string) *HTTPChecker {
	return &HTTPChecker{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (h *HTTPChecker) Name() string {
	return h.name
}

func (h *HTTPChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("Failed to create request: %v", err),
		}
	}

	resp, err := h.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("Request failed: %v", err),
			Latency: latency.String(),
		}
	}
	defer resp.Body.Close()

	status := StatusHealthy
	if resp.StatusCode >= 500 {
		status = StatusDegraded
	}
	return ComponentHealth{
		Status:  status,
		Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
		Latency: latency.String(),
	}
}

// RedisChecker pings Redis. A critical checker reports unhealthy on failure,
// for when Redis holds the dispatch guard and submissions cannot proceed
// without it. Otherwise only the method cache suffers and the check degrades.
type RedisChecker struct {
	client   *redis.Client
	critical bool
}

func NewRedisChecker(c *redis.Client, critical bool) *RedisChecker {
	return &RedisChecker{client: c, critical: critical}
}

func (r *RedisChecker) Name() string {
	return "redis"
}

func (r *RedisChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := r.client.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		status := StatusDegraded
		if r.critical {
			status = StatusUnhealthy
		}
		return ComponentHealth{
			Status:  status,
			Message: fmt.Sprintf("Redis ping failed: %v", err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{
		Status:  StatusHealthy,
		Message: "PONG",
		Latency: latency.String(),
	}
}
