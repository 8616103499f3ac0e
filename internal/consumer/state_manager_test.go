package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(i int) *int { return &i }

func setupStateManager(t *testing.T) (*miniredis.Miniredis, *StateManager) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{}
	cfg.SOS.DedupWindow = 300
	cfg.SOS.Cache.VitalsKeyPrefix = "miraii:ring:"
	cfg.SOS.Cache.VitalsSuffix = ":vitals"
	cfg.SOS.Cache.VitalsTTL = 60
	cfg.SOS.Cache.StateKeyPrefix = "sos:state:"

	return mr, NewStateManager(cfg, client, zap.NewNop())
}

func TestStateManager_Keys(t *testing.T) {
	_, sm := setupStateManager(t)

	assert.Equal(t, "miraii:ring:user-1:vitals", sm.GetVitalsKey("user-1"))
	assert.Equal(t, "sos:state:user-1:fall_detect", sm.GetDedupKey("user-1", "fall_detect"))
}

func TestStateManager_VitalsRoundTrip(t *testing.T) {
	mr, sm := setupStateManager(t)
	ctx := context.Background()

	vitals := &models.Vitals{
		HeartRate: intPtr(72),
		SpO2:      intPtr(98),
	}

	require.NoError(t, sm.SetVitals(ctx, "user-1", vitals))

	got, err := sm.GetVitals(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 72, *got.HeartRate)
	assert.Equal(t, 98, *got.SpO2)
	assert.Nil(t, got.Temperature)

	// 缓存带 TTL
	ttl := mr.TTL(sm.GetVitalsKey("user-1"))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 60*time.Second)
}

func TestStateManager_VitalsMissing(t *testing.T) {
	_, sm := setupStateManager(t)

	got, err := sm.GetVitals(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateManager_VitalsExpiry(t *testing.T) {
	mr, sm := setupStateManager(t)
	ctx := context.Background()

	require.NoError(t, sm.SetVitals(ctx, "user-1", &models.Vitals{HeartRate: intPtr(80)}))

	mr.FastForward(61 * time.Second)

	got, err := sm.GetVitals(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateManager_Dedup(t *testing.T) {
	mr, sm := setupStateManager(t)
	ctx := context.Background()

	triggered, err := sm.RecentlyTriggered(ctx, "user-1", "fall_detect")
	require.NoError(t, err)
	assert.False(t, triggered)

	require.NoError(t, sm.MarkTriggered(ctx, "user-1", "fall_detect"))

	triggered, err = sm.RecentlyTriggered(ctx, "user-1", "fall_detect")
	require.NoError(t, err)
	assert.True(t, triggered)

	// 不同来源互不影响
	triggered, err = sm.RecentlyTriggered(ctx, "user-1", "ring")
	require.NoError(t, err)
	assert.False(t, triggered)

	// 窗口过期后可重新触发
	mr.FastForward(301 * time.Second)
	triggered, err = sm.RecentlyTriggered(ctx, "user-1", "fall_detect")
	require.NoError(t, err)
	assert.False(t, triggered)
}

func TestStateManager_ClearTriggered(t *testing.T) {
	_, sm := setupStateManager(t)
	ctx := context.Background()

	require.NoError(t, sm.MarkTriggered(ctx, "user-1", "fall_detect"))
	require.NoError(t, sm.ClearTriggered(ctx, "user-1", "fall_detect"))

	triggered, err := sm.RecentlyTriggered(ctx, "user-1", "fall_detect")
	require.NoError(t, err)
	assert.False(t, triggered)
}
