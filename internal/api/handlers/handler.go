package handlers

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/internal/callcontrol"
	"github.com/troikatech/voice-orchestrator/internal/orchestrator"
	"github.com/troikatech/voice-orchestrator/internal/store"
	"github.com/troikatech/voice-orchestrator/pkg/env"
	"github.com/troikatech/voice-orchestrator/pkg/logger"
	"github.com/troikatech/voice-orchestrator/pkg/middleware"
)

type Handler struct {
	cfg          *env.Config
	redisClient  *redis.Client
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	adapter      *callcontrol.Adapter
	deduper      *middleware.WebhookDeduper
	logger       *zap.Logger
}

func NewHandler(
	cfg *env.Config,
	redisClient *redis.Client,
	st store.Store,
	orch *orchestrator.Orchestrator,
	adapter *callcontrol.Adapter,
) *Handler {
	return &Handler{
		cfg:          cfg,
		redisClient:  redisClient,
		store:        st,
		orchestrator: orch,
		adapter:      adapter,
		deduper:      middleware.NewWebhookDeduper(redisClient, logger.Log),
		logger:       logger.Log,
	}
}
