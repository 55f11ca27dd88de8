package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aswathylr-builds/storefront-checkout/metrics"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

const methodsCacheKey = "checkout:payment-methods"

// MethodSource lists payment methods, usually *storefront.Client
type MethodSource interface {
	PaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
}

// MethodCatalog serves the payment methods offered at checkout. It never
// fails: when the backend cannot answer, the built-in list is returned.
type MethodCatalog struct {
	source  MethodSource
	cache   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewMethodCatalog creates a catalog. cache may be nil.
func NewMethodCatalog(source MethodSource, cache *redis.Client, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *MethodCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MethodCatalog{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// List returns the methods and whether they are the built-in fallback
func (c *MethodCatalog) List(ctx context.Context) ([]models.PaymentMethod, bool) {
	if methods, ok := c.cached(ctx); ok {
		return methods, false
	}

	v, err, _ := c.group.Do("methods", func() (interface{}, error) {
		methods, err := c.source.PaymentMethods(ctx)
		if err != nil {
			return nil, err
		}
		if len(methods) == 0 {
			return nil, errors.New("backend returned no payment methods")
		}
		c.store(ctx, methods)
		return methods, nil
	})
	if err != nil {
		c.logger.Warn("Payment methods unavailable, serving built-in list", zap.Error(err))
		c.metrics.MethodFallback()
		return models.FallbackPaymentMethods(), true
	}
	return v.([]models.PaymentMethod), false
}

func (c *MethodCatalog) cached(ctx context.Context) ([]models.PaymentMethod, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, err := c.cache.Get(ctx, methodsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Payment methods cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var methods []models.PaymentMethod
	if err := json.Unmarshal(data, &methods); err != nil || len(methods) == 0 {
		return nil, false
	}
	return methods, true
}

func (c *MethodCatalog) store(ctx context.Context, methods []models.PaymentMethod) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(methods)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, methodsCacheKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Payment methods cache write failed", zap.Error(err))
	}
}
