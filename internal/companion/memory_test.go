package companion

import (
	"context"
	"fmt"
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

func setupMemory(t *testing.T) (*miniredis.Miniredis, *Memory) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{}
	cfg.Companion.Memory.KeyPrefix = "elai:conv:"
	cfg.Companion.Memory.MaxMessages = 20
	cfg.Companion.Memory.TTL = 86400

	return mr, NewMemory(cfg, client, zap.NewNop())
}

func TestMemory_AppendAndGetHistory(t *testing.T) {
	_, m := setupMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AppendMessage(ctx, "conv_abc", &models.ConversationMessage{
		Role: models.RoleUser, Content: "hello", Timestamp: 100,
	}))
	require.NoError(t, m.AppendMessage(ctx, "conv_abc", &models.ConversationMessage{
		Role: models.RoleAssistant, Content: "hi there", Timestamp: 101,
	}))

	history, err := m.GetHistory(ctx, "conv_abc")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestMemory_RollingWindow(t *testing.T) {
	_, m := setupMemory(t)
	ctx := context.Background()

	// 超过窗口大小后只保留最近 20 条
	for i := 0; i < 25; i++ {
		require.NoError(t, m.AppendMessage(ctx, "conv_win", &models.ConversationMessage{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("message %d", i),
		}))
	}

	history, err := m.GetHistory(ctx, "conv_win")
	require.NoError(t, err)
	require.Len(t, history, 20)
	assert.Equal(t, "message 5", history[0].Content)
	assert.Equal(t, "message 24", history[19].Content)
}

func TestMemory_TTL(t *testing.T) {
	mr, m := setupMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AppendMessage(ctx, "conv_ttl", &models.ConversationMessage{
		Role: models.RoleUser, Content: "hello",
	}))

	ttl := mr.TTL(m.GetConversationKey("conv_ttl"))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 86400*time.Second)

	mr.FastForward(86401 * time.Second)

	history, err := m.GetHistory(ctx, "conv_ttl")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemory_GetHistoryEmpty(t *testing.T) {
	_, m := setupMemory(t)

	history, err := m.GetHistory(context.Background(), "conv_nothing")

	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemory_DeleteConversation(t *testing.T) {
	_, m := setupMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AppendMessage(ctx, "conv_del", &models.ConversationMessage{
		Role: models.RoleUser, Content: "hello",
	}))

	exists, err := m.ConversationExists(ctx, "conv_del")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, m.DeleteConversation(ctx, "conv_del"))

	exists, err = m.ConversationExists(ctx, "conv_del")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_ListConversations(t *testing.T) {
	_, m := setupMemory(t)
	ctx := context.Background()

	for _, id := range []string{"conv_c", "conv_a", "conv_b"} {
		require.NoError(t, m.AppendMessage(ctx, id, &models.ConversationMessage{
			Role: models.RoleUser, Content: "hello",
		}))
	}

	ids, err := m.ListConversations(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"conv_a", "conv_b", "conv_c"}, ids)

	ids, err = m.ListConversations(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"conv_a", "conv_b"}, ids)
}

func TestMemory_ListConversationsEmpty(t *testing.T) {
	_, m := setupMemory(t)

	ids, err := m.ListConversations(context.Background(), 10)

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemory_SkipsCorruptEntries(t *testing.T) {
	mr, m := setupMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AppendMessage(ctx, "conv_mix", &models.ConversationMessage{
		Role: models.RoleUser, Content: "valid",
	}))
	mr.Lpush(m.GetConversationKey("conv_mix"), "not-json")

	history, err := m.GetHistory(ctx, "conv_mix")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "valid", history[0].Content)
}
