package sos

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/consumer"
	"github.com/BharathRai/miraii-backend/internal/detector"
	"github.com/BharathRai/miraii-backend/internal/metrics"
	"github.com/BharathRai/miraii-backend/internal/models"
	"github.com/BharathRai/miraii-backend/internal/notifier"
	"github.com/BharathRai/miraii-backend/internal/redisx"
	"github.com/BharathRai/miraii-backend/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriggerRequest SOS 触发请求
type TriggerRequest struct {
	UserID        string               `json:"user_id"`
	TriggerSource string               `json:"trigger_source"`
	Vitals        *models.Vitals       `json:"vitals,omitempty"`
	Location      *models.Location     `json:"location,omitempty"`
	Message       *string              `json:"message,omitempty"`
	TriggerData   *models.IncidentTriggerData `json:"trigger_data,omitempty"`
}

// Trigger SOS 触发编排器
// 完整链路：去重检查 → 体征补全 → 风险评级 → 入库 → 流发布 → 联系人通知
type Trigger struct {
	config       *config.Config
	engine       *detector.Engine
	incidentRepo *repository.IncidentsRepository
	stateManager *consumer.StateManager
	notifier     notifier.Notifier
	redisClient  *redis.Client
	logger       *zap.Logger
}

// NewTrigger 创建 SOS 触发编排器
func NewTrigger(
	cfg *config.Config,
	engine *detector.Engine,
	incidentRepo *repository.IncidentsRepository,
	stateManager *consumer.StateManager,
	n notifier.Notifier,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Trigger {
	return &Trigger{
		config:       cfg,
		engine:       engine,
		incidentRepo: incidentRepo,
		stateManager: stateManager,
		notifier:     n,
		redisClient:  redisClient,
		logger:       logger,
	}
}

// TriggerSOS 触发 SOS 事件
// 去重窗口内的重复触发返回已有事件，不重复通知
func (t *Trigger) TriggerSOS(ctx context.Context, req *TriggerRequest) (*models.Incident, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", detector.ErrInvalidInput)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", detector.ErrInvalidInput)
	}
	if !validTriggerSource(req.TriggerSource) {
		return nil, fmt.Errorf("%w: invalid trigger_source: %q", detector.ErrInvalidInput, req.TriggerSource)
	}

	// 1. 去重检查：窗口内同来源已有活跃事件则直接返回
	recently, err := t.stateManager.RecentlyTriggered(ctx, req.UserID, req.TriggerSource)
	if err != nil {
		// 去重只是抑制手段，检查失败时宁可重复报警也不能吞掉事件
		t.logger.Warn("Dedup check failed, proceeding with trigger",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
	}
	if recently {
		existing, err := t.incidentRepo.GetRecentIncident(ctx, req.UserID, req.TriggerSource, t.config.SOS.DedupWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to look up recent incident: %w", err)
		}
		if existing != nil {
			t.logger.Info("Duplicate SOS trigger suppressed",
				zap.String("user_id", req.UserID),
				zap.String("trigger_source", req.TriggerSource),
				zap.String("incident_id", existing.IncidentID),
			)
			metrics.SOSTriggersSuppressed.WithLabelValues(req.TriggerSource).Inc()
			return existing, nil
		}
	}

	// 2. 体征补全：请求未携带时使用缓存的最新读数
	vitals := req.Vitals
	if vitals == nil {
		cached, err := t.stateManager.GetVitals(ctx, req.UserID)
		if err != nil {
			t.logger.Warn("Failed to load cached vitals",
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
		} else {
			vitals = cached
		}
	}

	// 3. 风险评级
	riskLevel, err := t.engine.CalculateRiskLevel(vitals)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate risk level: %w", err)
	}

	// 4. 构建并入库事件
	now := time.Now()
	incident := &models.Incident{
		IncidentID:       newIncidentID(),
		UserID:           req.UserID,
		TriggerSource:    req.TriggerSource,
		RiskLevel:        string(riskLevel),
		Status:           models.IncidentStatusActive,
		NotifiedContacts: json.RawMessage("[]"),
		Message:          req.Message,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if vitals != nil {
		vitalsJSON, err := json.Marshal(vitals)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal vitals: %w", err)
		}
		incident.Vitals = vitalsJSON
	} else {
		incident.Vitals = json.RawMessage("{}")
	}

	if req.Location != nil {
		locationJSON, err := json.Marshal(req.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal location: %w", err)
		}
		incident.Location = locationJSON
	}

	triggerData := req.TriggerData
	if triggerData == nil {
		triggerData = &models.IncidentTriggerData{Source: req.TriggerSource}
	}
	triggerDataJSON, err := json.Marshal(triggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}
	incident.TriggerData = triggerDataJSON

	if err := t.incidentRepo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist incident: %w", err)
	}

	metrics.IncidentsOpened.WithLabelValues(req.TriggerSource, string(riskLevel)).Inc()

	// 5. 设置去重标记
	if err := t.stateManager.MarkTriggered(ctx, req.UserID, req.TriggerSource); err != nil {
		t.logger.Warn("Failed to mark trigger for dedup",
			zap.String("incident_id", incident.IncidentID),
			zap.Error(err),
		)
	}

	// 6. 发布到事件流供下游消费
	streamData := map[string]interface{}{
		"incident_id":    incident.IncidentID,
		"user_id":        incident.UserID,
		"trigger_source": incident.TriggerSource,
		"risk_level":     incident.RiskLevel,
		"status":         incident.Status,
		"timestamp":      now.Unix(),
	}
	if _, err := redisx.PublishJSONToStream(ctx, t.redisClient, t.config.SOS.EventStream, streamData); err != nil {
		t.logger.Error("Failed to publish incident to event stream",
			zap.String("incident_id", incident.IncidentID),
			zap.String("stream", t.config.SOS.EventStream),
			zap.Error(err),
		)
	}

	// 7. 通知紧急联系人（通知失败不回滚事件，已入库的事件仍可被护理端看到）
	notified := t.notifyContacts(ctx, incident, vitals, req.Location)
	if len(notified) > 0 {
		if err := t.incidentRepo.UpdateNotifiedContacts(ctx, incident.IncidentID, notified); err != nil {
			t.logger.Error("Failed to record notified contacts",
				zap.String("incident_id", incident.IncidentID),
				zap.Error(err),
			)
		} else {
			contactsJSON, _ := json.Marshal(notified)
			incident.NotifiedContacts = contactsJSON
		}
	}

	t.logger.Info("SOS incident opened",
		zap.String("incident_id", incident.IncidentID),
		zap.String("user_id", incident.UserID),
		zap.String("trigger_source", incident.TriggerSource),
		zap.String("risk_level", incident.RiskLevel),
		zap.Int("contacts_notified", len(notified)),
	)

	return incident, nil
}

// TriggerFromFall 由跌倒判定结果触发 SOS（戒指消费链路的入口）
func (t *Trigger) TriggerFromFall(ctx context.Context, userID string, verdict *models.FallVerdict, event *models.AnnotatedEvent) (*models.Incident, error) {
	if verdict == nil || !verdict.FallDetected {
		return nil, fmt.Errorf("%w: fall verdict must be positive to trigger SOS", detector.ErrInvalidInput)
	}

	triggerData := &models.IncidentTriggerData{
		FallDetected: true,
		Confidence:   &verdict.Confidence,
		FallType:     &verdict.FallType,
		Source:       models.TriggerSourceRing,
	}

	var vitals *models.Vitals
	if event != nil {
		triggerData.AccelMagnitude = &event.AccelMagnitude
		triggerData.HeartRate = event.Sample.HeartRate
		triggerData.SpO2 = event.Sample.SpO2
		if event.Sample.HeartRate != nil || event.Sample.SpO2 != nil {
			vitals = &models.Vitals{
				HeartRate: event.Sample.HeartRate,
				SpO2:      event.Sample.SpO2,
			}
		}
	}

	return t.TriggerSOS(ctx, &TriggerRequest{
		UserID:        userID,
		TriggerSource: models.TriggerSourceFallDetect,
		Vitals:        vitals,
		TriggerData:   triggerData,
	})
}

// notifyContacts 逐个通知紧急联系人，返回成功送达的列表
func (t *Trigger) notifyContacts(ctx context.Context, incident *models.Incident, vitals *models.Vitals, location *models.Location) []string {
	notified := []string{}
	for _, contact := range t.config.SOS.Contacts {
		alert := &notifier.Alert{
			To:         contact,
			IncidentID: incident.IncidentID,
			UserID:     incident.UserID,
			Source:     incident.TriggerSource,
			RiskLevel:  incident.RiskLevel,
			Vitals:     vitals,
			Location:   location,
			Message:    incident.Message,
			OccurredAt: incident.CreatedAt,
		}
		if err := t.notifier.SendAlert(ctx, alert); err != nil {
			t.logger.Error("Failed to notify contact",
				zap.String("incident_id", incident.IncidentID),
				zap.String("contact", contact),
				zap.Error(err),
			)
			metrics.NotificationsFailed.Inc()
			continue
		}
		notified = append(notified, contact)
		metrics.NotificationsSent.Inc()
	}
	return notified
}

// newIncidentID 生成 sos_ 前缀的短十六进制事件 ID
func newIncidentID() string {
	u := uuid.New()
	return "sos_" + hex.EncodeToString(u[:6])
}

func validTriggerSource(source string) bool {
	switch source {
	case models.TriggerSourceApp, models.TriggerSourceRing, models.TriggerSourceFallDetect, models.TriggerSourceManual:
		return true
	}
	return false
}
