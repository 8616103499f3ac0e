package consumer

import (
	"context"
	"testing"

	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/detector"
	"github.com/BharathRai/miraii-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTrigger 记录跌倒触发调用
type fakeTrigger struct {
	calls []string
}

func (f *fakeTrigger) TriggerFromFall(ctx context.Context, userID string, verdict *models.FallVerdict, event *models.AnnotatedEvent) (*models.Incident, error) {
	f.calls = append(f.calls, userID)
	return &models.Incident{
		IncidentID:    "inc-test",
		UserID:        userID,
		TriggerSource: models.TriggerSourceFallDetect,
		Status:        models.IncidentStatusActive,
	}, nil
}

func setupRingConsumer(t *testing.T) (*miniredis.Miniredis, *RingConsumer, *fakeTrigger) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{}
	cfg.SOS.SensorTopic = "ring/+/sensor"
	cfg.SOS.DedupWindow = 300
	cfg.SOS.Cache.VitalsKeyPrefix = "miraii:ring:"
	cfg.SOS.Cache.VitalsSuffix = ":vitals"
	cfg.SOS.Cache.VitalsTTL = 60
	cfg.SOS.Cache.StateKeyPrefix = "sos:state:"

	logger := zap.NewNop()
	engine := detector.NewEngine(detector.NewThresholdDetector(), detector.NewThresholdRiskScorer(), logger)
	stateManager := NewStateManager(cfg, redisClient, logger)
	trigger := &fakeTrigger{}

	// MQTT 客户端仅 Start/Stop 需要，消息处理逻辑直接测 handleMessage
	c := NewRingConsumer(cfg, nil, redisClient, engine, stateManager, trigger, logger)
	return mr, c, trigger
}

func TestHandleMessage_RestingNoTrigger(t *testing.T) {
	mr, c, trigger := setupRingConsumer(t)

	payload := `{"accelerometer": {"x": 0, "y": 0, "z": 9.8}, "gyroscope": {"x": 0, "y": 0, "z": 0}, "timestamp": 1000}`
	err := c.handleMessage("ring/RING001/sensor", []byte(payload))

	require.NoError(t, err)
	assert.Empty(t, trigger.calls)

	// 标注事件进入流
	assert.True(t, mr.Exists("ring:sensor:stream"))
}

func TestHandleMessage_ImpactTriggersSOS(t *testing.T) {
	_, c, trigger := setupRingConsumer(t)

	payload := `{"accelerometer": {"x": 20, "y": 15, "z": 10}, "gyroscope": {"x": 1, "y": 1, "z": 1}, "timestamp": 2000, "heart_rate": 130}`
	err := c.handleMessage("ring/RING001/sensor", []byte(payload))

	require.NoError(t, err)
	require.Len(t, trigger.calls, 1)
	assert.Equal(t, "RING001", trigger.calls[0])
}

func TestHandleMessage_CachesVitals(t *testing.T) {
	_, c, _ := setupRingConsumer(t)

	payload := `{"accelerometer": {"x": 0, "y": 0, "z": 9.8}, "gyroscope": {"x": 0, "y": 0, "z": 0}, "timestamp": 1000, "heart_rate": 75, "spo2": 97}`
	require.NoError(t, c.handleMessage("ring/RING001/sensor", []byte(payload)))

	vitals, err := c.stateManager.GetVitals(context.Background(), "RING001")
	require.NoError(t, err)
	require.NotNil(t, vitals)
	assert.Equal(t, 75, *vitals.HeartRate)
	assert.Equal(t, 97, *vitals.SpO2)
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	_, c, trigger := setupRingConsumer(t)

	err := c.handleMessage("ring/RING001/sensor", []byte(`not json`))
	assert.Error(t, err)

	// 缺失必填字段
	err = c.handleMessage("ring/RING001/sensor", []byte(`{"gyroscope": {"x": 0, "y": 0, "z": 0}, "timestamp": 1000}`))
	assert.Error(t, err)
	assert.ErrorIs(t, err, detector.ErrInvalidInput)

	assert.Empty(t, trigger.calls)
}

func TestHandleMessage_BadTopic(t *testing.T) {
	_, c, trigger := setupRingConsumer(t)

	// 段数、前后缀、空序列号都必须校验
	badTopics := []string{
		"ring",
		"ring/RING001",
		"radar/RING001/sensor",
		"ring/RING001/telemetry",
		"ring//sensor",
		"ring/RING001/sensor/extra",
	}
	for _, topic := range badTopics {
		err := c.handleMessage(topic, []byte(`{}`))
		assert.Error(t, err, topic)
		assert.Contains(t, err.Error(), "invalid topic format", topic)
	}

	assert.Empty(t, trigger.calls)
}
