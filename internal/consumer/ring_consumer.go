package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/detector"
	"github.com/BharathRai/miraii-backend/internal/metrics"
	"github.com/BharathRai/miraii-backend/internal/models"
	"github.com/BharathRai/miraii-backend/internal/mqtt"
	"github.com/BharathRai/miraii-backend/internal/redisx"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// IncidentTrigger 跌倒触发 SOS 的入口（由 sos.Trigger 实现）
type IncidentTrigger interface {
	TriggerFromFall(ctx context.Context, userID string, verdict *models.FallVerdict, event *models.AnnotatedEvent) (*models.Incident, error)
}

// RingConsumer 戒指传感器 MQTT 消费者
// 链路：MQTT 订阅 → 解析校验 → 事件标注 → 体征缓存 → 跌倒判定 → SOS 触发
type RingConsumer struct {
	config       *config.Config
	mqttClient   *mqtt.Client
	redisClient  *redis.Client
	engine       *detector.Engine
	stateManager *StateManager
	trigger      IncidentTrigger
	logger       *zap.Logger
}

// NewRingConsumer 创建戒指传感器消费者
func NewRingConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	redisClient *redis.Client,
	engine *detector.Engine,
	stateManager *StateManager,
	trigger IncidentTrigger,
	logger *zap.Logger,
) *RingConsumer {
	return &RingConsumer{
		config:       cfg,
		mqttClient:   mqttClient,
		redisClient:  redisClient,
		engine:       engine,
		stateManager: stateManager,
		trigger:      trigger,
		logger:       logger,
	}
}

// Start 启动消费者
func (c *RingConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.SOS.SensorTopic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}

	c.logger.Info("Ring sensor consumer started",
		zap.String("topic", c.config.SOS.SensorTopic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *RingConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.SOS.SensorTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Ring sensor consumer stopped")
	return nil
}

// handleMessage 处理单条传感器消息
func (c *RingConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received sensor message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	// 1. 从主题提取戒指序列号
	// 主题格式: ring/{serial}/sensor
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "ring" || parts[2] != "sensor" || parts[1] == "" {
		metrics.SensorEventsRejected.Inc()
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	userID := parts[1]

	// 2. 解析消息
	var sample models.SensorSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		metrics.SensorEventsRejected.Inc()
		c.logger.Error("Failed to unmarshal sensor message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal sensor message: %w", err)
	}

	// 3. 校验并标注
	event, err := c.engine.ProcessSensorEvent(&sample)
	if err != nil {
		metrics.SensorEventsRejected.Inc()
		return fmt.Errorf("failed to process sensor event: %w", err)
	}
	metrics.SensorEventsProcessed.Inc()

	// 4. 缓存随传感器上报的体征
	if sample.HeartRate != nil || sample.SpO2 != nil {
		vitals := &models.Vitals{
			HeartRate: sample.HeartRate,
			SpO2:      sample.SpO2,
		}
		if err := c.stateManager.SetVitals(context.Background(), userID, vitals); err != nil {
			c.logger.Warn("Failed to cache vitals",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	// 5. 发布标注事件到 Redis Streams 供下游分析
	streamData := map[string]interface{}{
		"user_id":         userID,
		"accel_magnitude": event.AccelMagnitude,
		"gyro_magnitude":  event.GyroMagnitude,
		"free_fall":       event.FreeFall,
		"impact":          event.Impact,
		"anomalies":       strings.Join(event.Anomalies, ","),
		"timestamp":       *sample.Timestamp,
		"processed_at":    event.ProcessedAt,
	}
	streamName := "ring:sensor:stream"
	if _, err := redisx.PublishToStream(context.Background(), c.redisClient, streamName, streamData); err != nil {
		c.logger.Error("Failed to publish sensor event to stream",
			zap.String("stream", streamName),
			zap.Error(err),
		)
	}

	// 6. 跌倒判定
	verdict, err := c.engine.DetectFall(&sample)
	if err != nil {
		return fmt.Errorf("fall detection failed: %w", err)
	}
	if !verdict.FallDetected {
		return nil
	}

	metrics.FallsDetected.WithLabelValues(verdict.FallType).Inc()

	// 7. 触发 SOS
	incident, err := c.trigger.TriggerFromFall(context.Background(), userID, verdict, event)
	if err != nil {
		return fmt.Errorf("failed to trigger SOS from fall: %w", err)
	}

	c.logger.Info("Fall detected from ring sensor",
		zap.String("user_id", userID),
		zap.String("incident_id", incident.IncidentID),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("fall_type", verdict.FallType),
	)

	return nil
}
