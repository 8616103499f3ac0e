package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StateManager 戒指状态管理器（体征缓存 + 触发去重标记）
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetVitalsKey 构建用户体征缓存键
func (s *StateManager) GetVitalsKey(userID string) string {
	return fmt.Sprintf("%s%s%s",
		s.config.SOS.Cache.VitalsKeyPrefix,
		userID,
		s.config.SOS.Cache.VitalsSuffix,
	)
}

// GetDedupKey 构建触发去重键
func (s *StateManager) GetDedupKey(userID, triggerSource string) string {
	return fmt.Sprintf("%s%s:%s",
		s.config.SOS.Cache.StateKeyPrefix,
		userID,
		triggerSource,
	)
}

// SetVitals 缓存用户最新体征（带 TTL，过期即视为无可用读数）
func (s *StateManager) SetVitals(ctx context.Context, userID string, vitals *models.Vitals) error {
	jsonData, err := json.Marshal(vitals)
	if err != nil {
		return fmt.Errorf("failed to marshal vitals: %w", err)
	}

	ttl := time.Duration(s.config.SOS.Cache.VitalsTTL) * time.Second
	err = s.redisClient.Set(ctx, s.GetVitalsKey(userID), jsonData, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set vitals: %w", err)
	}

	return nil
}

// GetVitals 读取用户最新体征，缓存缺失返回 nil
func (s *StateManager) GetVitals(ctx context.Context, userID string) (*models.Vitals, error) {
	val, err := s.redisClient.Get(ctx, s.GetVitalsKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 无缓存读数
		}
		return nil, fmt.Errorf("failed to get vitals: %w", err)
	}

	var vitals models.Vitals
	if err := json.Unmarshal([]byte(val), &vitals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vitals: %w", err)
	}

	return &vitals, nil
}

// MarkTriggered 设置触发去重标记（窗口内同来源不再重复开事件）
func (s *StateManager) MarkTriggered(ctx context.Context, userID, triggerSource string) error {
	window := time.Duration(s.config.SOS.DedupWindow) * time.Second
	err := s.redisClient.Set(ctx, s.GetDedupKey(userID, triggerSource), time.Now().Unix(), window).Err()
	if err != nil {
		return fmt.Errorf("failed to mark triggered: %w", err)
	}
	return nil
}

// RecentlyTriggered 检查去重窗口内是否已触发过
func (s *StateManager) RecentlyTriggered(ctx context.Context, userID, triggerSource string) (bool, error) {
	count, err := s.redisClient.Exists(ctx, s.GetDedupKey(userID, triggerSource)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check trigger state: %w", err)
	}
	return count > 0, nil
}

// ClearTriggered 清除去重标记（事件被确认为误报后允许立即重触发）
func (s *StateManager) ClearTriggered(ctx context.Context, userID, triggerSource string) error {
	err := s.redisClient.Del(ctx, s.GetDedupKey(userID, triggerSource)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear trigger state: %w", err)
	}
	return nil
}
