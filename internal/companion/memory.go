package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Memory 会话历史管理器
// Redis List 存储，只保留最近 N 条消息，整个会话带 TTL
type Memory struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMemory 创建会话历史管理器
func NewMemory(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *Memory {
	return &Memory{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetConversationKey 构建会话缓存键
func (m *Memory) GetConversationKey(conversationID string) string {
	return m.config.Companion.Memory.KeyPrefix + conversationID
}

// AppendMessage 追加一条消息并裁剪到窗口大小
func (m *Memory) AppendMessage(ctx context.Context, conversationID string, msg *models.ConversationMessage) error {
	if conversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := m.GetConversationKey(conversationID)
	maxMessages := int64(m.config.Companion.Memory.MaxMessages)
	ttl := time.Duration(m.config.Companion.Memory.TTL) * time.Second

	pipe := m.redisClient.Pipeline()
	pipe.RPush(ctx, key, jsonData)
	pipe.LTrim(ctx, key, -maxMessages, -1)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

// GetHistory 读取会话历史（时间顺序）
func (m *Memory) GetHistory(ctx context.Context, conversationID string) ([]models.ConversationMessage, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}

	key := m.GetConversationKey(conversationID)
	items, err := m.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []models.ConversationMessage{}, nil
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	messages := make([]models.ConversationMessage, 0, len(items))
	for _, item := range items {
		var msg models.ConversationMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// 跳过损坏的历史条目，不让单条坏数据瘫痪会话
			m.logger.Warn("Skipping corrupt conversation entry",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// ListConversations 列出现存会话 ID（字典序，最多 limit 条；limit <= 0 表示不限）
func (m *Memory) ListConversations(ctx context.Context, limit int) ([]string, error) {
	prefix := m.config.Companion.Memory.KeyPrefix
	pattern := prefix + "*"

	ids := []string{}
	var cursor uint64
	for {
		keys, next, err := m.redisClient.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversations: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// DeleteConversation 删除会话历史
func (m *Memory) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}

	if err := m.redisClient.Del(ctx, m.GetConversationKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return nil
}

// ConversationExists 检查会话是否存在
func (m *Memory) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	count, err := m.redisClient.Exists(ctx, m.GetConversationKey(conversationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	return count > 0, nil
}
