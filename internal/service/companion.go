package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BharathRai/miraii-backend/internal/companion"
	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/httpapi"
	"github.com/BharathRai/miraii-backend/internal/redisx"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CompanionService Companion 对话服务（整合各层）
type CompanionService struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger

	memory     *companion.Memory
	engine     *companion.Engine
	httpServer *Server
}

// NewCompanionService 创建 Companion 服务
func NewCompanionService(cfg *config.Config, logger *zap.Logger) (*CompanionService, error) {
	if cfg.Companion.ModelAPIKey == "" {
		return nil, fmt.Errorf("MODEL_API_KEY is required")
	}

	// 1. 连接 Redis（会话历史存储）
	redisClient := redisx.NewRedisClient(&cfg.Redis)
	if err := redisx.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 2. 创建对话引擎
	timeout := time.Duration(cfg.Companion.RequestTimeout) * time.Second
	memory := companion.NewMemory(cfg, redisClient, logger)
	llm := companion.NewLLMClient(cfg.Companion.ModelBaseURL, cfg.Companion.ModelAPIKey, cfg.Companion.ModelName, timeout, logger)
	tts := companion.NewTTSClient(cfg.Companion.ElevenAPIKey, cfg.Companion.ElevenVoiceID, timeout, logger)
	engine := companion.NewEngine(memory, llm, tts, cfg.Companion.ModelName, logger)

	// 3. 创建 HTTP 服务器
	router := httpapi.NewRouter(logger)
	caps := companion.Capabilities{
		LLM: cfg.Companion.ModelAPIKey != "",
		TTS: cfg.Companion.ElevenAPIKey != "",
	}
	router.RegisterCompanionRoutes(httpapi.NewCompanionHandler(engine, memory, caps, logger))
	router.HandleHandler("/metrics", promhttp.Handler())
	httpServer := NewServer(cfg.HTTP.Addr, router, logger)

	return &CompanionService{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
		memory:      memory,
		engine:      engine,
		httpServer:  httpServer,
	}, nil
}

// Start 启动服务
func (s *CompanionService) Start(ctx context.Context) error {
	s.logger.Info("Starting companion service",
		zap.String("model", s.config.Companion.ModelName),
		zap.Bool("tts_enabled", s.config.Companion.ElevenAPIKey != ""),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop 停止服务
func (s *CompanionService) Stop() error {
	s.logger.Info("Stopping companion service")

	if err := s.httpServer.Stop(context.Background()); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
