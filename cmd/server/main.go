package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/internal/api/handlers"
	"github.com/troikatech/voice-orchestrator/internal/callcontrol"
	"github.com/troikatech/voice-orchestrator/internal/orchestrator"
	"github.com/troikatech/voice-orchestrator/internal/store"
	"github.com/troikatech/voice-orchestrator/pkg/ai"
	"github.com/troikatech/voice-orchestrator/pkg/env"
	"github.com/troikatech/voice-orchestrator/pkg/logger"
	"github.com/troikatech/voice-orchestrator/pkg/middleware"
	"github.com/troikatech/voice-orchestrator/pkg/mongo"
	"github.com/troikatech/voice-orchestrator/pkg/otel"
	"github.com/troikatech/voice-orchestrator/pkg/storage"
)

// Server wires the webhook surface, the operator API, and the session
// reaper into one process.
type Server struct {
	cfg         *env.Config
	redisClient *redis.Client
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("voice-orchestrator", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting voice orchestrator",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	// Redis: webhook dedupe and API rate limiting.
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	callStore := store.NewMongoStore(mongoClient, logger.Log)

	providerClient := callcontrol.NewClient(
		cfg.VoiceAPIBaseURL,
		cfg.VoiceAPIKey,
		cfg.VoiceAPISecret,
	)
	adapter := callcontrol.NewAdapter(providerClient, callStore, cfg.WebhookBaseURL, cfg.DefaultCallerID)

	storageDriver, err := storage.NewDriver(cfg.StorageDriver, cfg.VoiceAPIBaseURL, cfg.LocalStoragePath)
	if err != nil {
		logger.Log.Fatal("Failed to create storage driver", zap.Error(err))
	}

	var responder orchestrator.Responder
	if cfg.FeatureAI && cfg.OpenAIApiKey != "" {
		timeout := time.Duration(cfg.AITimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		providers := []ai.Provider{}
		openAIProvider := ai.NewOpenAIProvider(
			cfg.OpenAIApiKey,
			cfg.OpenAIModel,
			cfg.OpenAIMaxTokens,
			timeout,
			logger.Log,
		)
		if openAIProvider.IsAvailable() {
			providers = append(providers, openAIProvider)
			logger.Log.Info("OpenAI provider initialized", zap.String("model", cfg.OpenAIModel))
		}
		responder = ai.NewManager(providers, logger.Log)
	} else {
		logger.Log.Warn("AI responder disabled; calls will degrade to voicemail capture")
		responder = ai.NewManager(nil, logger.Log)
	}

	orch := orchestrator.New(callStore, adapter, responder, storageDriver, orchestrator.Config{
		MaxNoInputAttempts: cfg.MaxNoInputAttempts,
		IdleTimeout:        time.Duration(cfg.SessionIdleMinutes) * time.Minute,
		AITimeout:          time.Duration(cfg.AITimeoutMs) * time.Millisecond,
		SummarizeOnEnd:     cfg.FeatureAI,
	})

	apiHandler := handlers.NewHandler(cfg, redisClient, callStore, orch, adapter)

	server := &Server{
		cfg:         cfg,
		redisClient: redisClient,
		handler:     apiHandler,
	}

	router := server.setupRouter()

	// Background sweep of sessions the provider stopped calling back about.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go orch.RunReaper(reaperCtx, time.Duration(cfg.ReapIntervalMin)*time.Minute)

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Voice orchestrator listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	stopReaper()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

func (s *Server) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20)) // 1 MB limit

	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(s.redisClient, s.cfg.APIRateLimitRPM)

	router.GET("/health", s.handler.HealthCheck)

	// Provider callbacks: signature-checked in the handlers, never rate
	// limited, never authed.
	webhooks := router.Group("/webhooks/voice")
	{
		webhooks.POST("/answer", s.handler.AnswerWebhook)
		webhooks.POST("/event/:call_id", s.handler.EventWebhook)
		webhooks.POST("/input/:call_id", s.handler.InputWebhook)
		webhooks.POST("/recording/:call_id", s.handler.RecordingWebhook)
		webhooks.POST("/voicemail/:call_id", s.handler.VoicemailWebhook)
		webhooks.POST("/transfer/:call_id", s.handler.TransferWebhook)
		webhooks.POST("/machine/:call_id", s.handler.MachineWebhook)
	}

	// Operator API (protected)
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(s.cfg.JWTSecret))
	api.Use(rateLimiter.Middleware())
	{
		calls := api.Group("/calls")
		{
			calls.POST("", s.handler.CreateCall)
			calls.GET("", s.handler.ListCalls)
			calls.GET("/:call_id", s.handler.GetCall)
			calls.POST("/:call_id/hold", s.handler.HoldCall)
			calls.POST("/:call_id/resume", s.handler.ResumeCall)
			calls.POST("/:call_id/transfer", s.handler.TransferCall)
			calls.POST("/:call_id/hangup", s.handler.HangupCall)
		}

		callbacks := api.Group("/callbacks")
		{
			callbacks.GET("", s.handler.ListCallbacks)
			callbacks.DELETE("/:callback_id", s.handler.CompleteCallback)
		}

		sessions := api.Group("/sessions")
		{
			sessions.GET("", s.handler.ListSessions)
			sessions.GET("/monitor", s.handler.MonitorSessions)
		}
	}

	return router
}
