package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupeTTL = 10 * time.Minute

// WebhookDeduper marks webhook deliveries as seen so the notification-only
// handlers can skip duplicate at-least-once deliveries. The flow-controlling
// handlers (answer, input) stay idempotent on their own; this guard exists
// for the 200-and-swallow callback types where reprocessing would double
// writes to the durable record.
type WebhookDeduper struct {
	client *redis.Client
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time // fallback when Redis is unavailable
}

func NewWebhookDeduper(client *redis.Client, logger *zap.Logger) *WebhookDeduper {
	return &WebhookDeduper{
		client: client,
		logger: logger,
		seen:   make(map[string]time.Time),
	}
}

// FirstDelivery reports whether this delivery key has not been seen before.
// Errors talking to Redis degrade to a local map: a duplicate write is less
// harmful than rejecting a first delivery.
func (d *WebhookDeduper) FirstDelivery(c *gin.Context, key string) bool {
	if key == "" {
		return true
	}

	if d.client != nil {
		ok, err := d.client.SetNX(c.Request.Context(), "webhook:seen:"+key, 1, dedupeTTL).Result()
		if err == nil {
			return ok
		}
		d.logger.Warn("webhook dedupe check failed, using local fallback", zap.Error(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for k, t := range d.seen {
		if now.Sub(t) > dedupeTTL {
			delete(d.seen, k)
		}
	}
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = now
	return true
}
