package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/consumer"
	"github.com/BharathRai/miraii-backend/internal/database"
	"github.com/BharathRai/miraii-backend/internal/detector"
	"github.com/BharathRai/miraii-backend/internal/httpapi"
	"github.com/BharathRai/miraii-backend/internal/mqtt"
	"github.com/BharathRai/miraii-backend/internal/notifier"
	"github.com/BharathRai/miraii-backend/internal/redisx"
	"github.com/BharathRai/miraii-backend/internal/repository"
	"github.com/BharathRai/miraii-backend/internal/sos"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SOSService SOS 服务（整合各层）
type SOSService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	engine       *detector.Engine
	incidentRepo *repository.IncidentsRepository
	stateManager *consumer.StateManager
	trigger      *sos.Trigger
	ringConsumer *consumer.RingConsumer
	httpServer   *Server
}

// NewSOSService 创建 SOS 服务
func NewSOSService(cfg *config.Config, logger *zap.Logger) (*SOSService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redisx.NewRedisClient(&cfg.Redis)
	if err := redisx.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect MQTT broker: %w", err)
	}

	// 4. 创建检测引擎与仓库
	engine := detector.NewEngine(detector.NewThresholdDetector(), detector.NewThresholdRiskScorer(), logger)
	incidentRepo := repository.NewIncidentsRepository(db, logger)

	// 5. 创建状态管理和触发编排
	stateManager := consumer.NewStateManager(cfg, redisClient, logger)
	emailNotifier := notifier.NewEmailNotifier(cfg.Notify.EmailBaseURL, cfg.Notify.EmailAPIKey, cfg.Notify.FromAddress, logger)
	trigger := sos.NewTrigger(cfg, engine, incidentRepo, stateManager, emailNotifier, redisClient, logger)

	// 6. 创建戒指传感器消费者
	ringConsumer := consumer.NewRingConsumer(cfg, mqttClient, redisClient, engine, stateManager, trigger, logger)

	// 7. 创建 HTTP 服务器
	router := httpapi.NewRouter(logger)
	router.RegisterSOSRoutes(httpapi.NewSOSHandler(trigger, engine, incidentRepo, logger))
	router.HandleHandler("/metrics", promhttp.Handler())
	httpServer := NewServer(cfg.HTTP.Addr, router, logger)

	return &SOSService{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		mqttClient:   mqttClient,
		logger:       logger,
		engine:       engine,
		incidentRepo: incidentRepo,
		stateManager: stateManager,
		trigger:      trigger,
		ringConsumer: ringConsumer,
		httpServer:   httpServer,
	}, nil
}

// Start 启动服务（HTTP 服务器 + MQTT 消费者）
func (s *SOSService) Start(ctx context.Context) error {
	s.logger.Info("Starting SOS service")

	errChan := make(chan error, 2)

	go func() {
		if err := s.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	go func() {
		if err := s.ringConsumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("ring consumer failed: %w", err)
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
func (s *SOSService) Stop() error {
	s.logger.Info("Stopping SOS service")

	ctx := context.Background()

	if err := s.httpServer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	if err := s.ringConsumer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop ring consumer", zap.Error(err))
	}

	s.mqttClient.Disconnect()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
