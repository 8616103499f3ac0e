package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BharathRai/miraii-backend/internal/models"

	"go.uber.org/zap"
)

// IncidentsRepository SOS 事件仓库
type IncidentsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIncidentsRepository 创建 SOS 事件仓库
func NewIncidentsRepository(db *sql.DB, logger *zap.Logger) *IncidentsRepository {
	return &IncidentsRepository{
		db:     db,
		logger: logger,
	}
}

// IncidentFilters 事件查询过滤条件
type IncidentFilters struct {
	// 时间段过滤
	StartTime *time.Time // created_at >= StartTime
	EndTime   *time.Time // created_at <= EndTime

	// 状态过滤
	Status   *string  // 单个状态
	Statuses []string // 状态列表（IN 查询）

	// 触发来源过滤
	TriggerSource *string

	// 风险等级过滤
	RiskLevel  *string
	RiskLevels []string // 风险等级列表（IN 查询）
}

const incidentColumns = `
		incident_id,
		user_id,
		trigger_source,
		risk_level,
		status,
		vitals,
		location,
		trigger_data,
		notified_contacts,
		message,
		acknowledged_by,
		acknowledged_at,
		resolved_at,
		notes,
		created_at,
		updated_at`

// scanIncident 从一行扫描事件，处理可空和 JSONB 字段
func scanIncident(scan func(dest ...interface{}) error) (*models.Incident, error) {
	var incident models.Incident
	var message, acknowledgedBy, notes sql.NullString
	var acknowledgedAt, resolvedAt sql.NullTime
	var vitals, location, triggerData, notifiedContacts []byte

	err := scan(
		&incident.IncidentID,
		&incident.UserID,
		&incident.TriggerSource,
		&incident.RiskLevel,
		&incident.Status,
		&vitals,
		&location,
		&triggerData,
		&notifiedContacts,
		&message,
		&acknowledgedBy,
		&acknowledgedAt,
		&resolvedAt,
		&notes,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// 处理可空字段
	if message.Valid {
		incident.Message = &message.String
	}
	if acknowledgedBy.Valid {
		incident.AcknowledgedBy = &acknowledgedBy.String
	}
	if acknowledgedAt.Valid {
		incident.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		incident.ResolvedAt = &resolvedAt.Time
	}
	if notes.Valid {
		incident.Notes = &notes.String
	}

	// 处理 JSONB 字段
	if len(vitals) > 0 {
		incident.Vitals = vitals
	} else {
		incident.Vitals = json.RawMessage("{}")
	}
	if len(location) > 0 {
		incident.Location = location
	}
	if len(triggerData) > 0 {
		incident.TriggerData = triggerData
	} else {
		incident.TriggerData = json.RawMessage("{}")
	}
	if len(notifiedContacts) > 0 {
		incident.NotifiedContacts = notifiedContacts
	} else {
		incident.NotifiedContacts = json.RawMessage("[]")
	}

	return &incident, nil
}

// ============================================
// 基础 CRUD 操作
// ============================================

// CreateIncident 创建 SOS 事件
func (r *IncidentsRepository) CreateIncident(ctx context.Context, incident *models.Incident) error {
	if incident == nil {
		return fmt.Errorf("incident is required")
	}
	if incident.IncidentID == "" {
		return fmt.Errorf("incident_id is required")
	}
	if incident.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !validTriggerSource(incident.TriggerSource) {
		return fmt.Errorf("invalid trigger_source: %s", incident.TriggerSource)
	}
	if !models.RiskLevel(incident.RiskLevel).Valid() {
		return fmt.Errorf("invalid risk_level: %s", incident.RiskLevel)
	}

	query := `
		INSERT INTO incidents (
			incident_id,
			user_id,
			trigger_source,
			risk_level,
			status,
			vitals,
			location,
			trigger_data,
			notified_contacts,
			message,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		incident.IncidentID,
		incident.UserID,
		incident.TriggerSource,
		incident.RiskLevel,
		incident.Status,
		incident.Vitals,
		incident.Location,
		incident.TriggerData,
		incident.NotifiedContacts,
		incident.Message,
		incident.CreatedAt,
		incident.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	return nil
}

// GetIncident 根据 incident_id 获取单个事件
func (r *IncidentsRepository) GetIncident(ctx context.Context, incidentID string) (*models.Incident, error) {
	if incidentID == "" {
		return nil, fmt.Errorf("incident_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM incidents
		WHERE incident_id = $1
	`, incidentColumns)

	row := r.db.QueryRowContext(ctx, query, incidentID)
	incident, err := scanIncident(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("incident not found: incident_id=%s", incidentID)
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	return incident, nil
}

// ListIncidents 列表查询（支持多条件过滤、分页，按创建时间倒序）
func (r *IncidentsRepository) ListIncidents(ctx context.Context, userID string, filters IncidentFilters, page, size int) ([]*models.Incident, int, error) {
	if userID == "" {
		return []*models.Incident{}, 0, nil
	}

	args := []interface{}{userID}
	argN := 2
	where := []string{"user_id = $1"}

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argN))
		args = append(args, *filters.StartTime)
		argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", argN))
		args = append(args, *filters.EndTime)
		argN++
	}
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, *filters.Status)
		argN++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, filters.Statuses[i])
			argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filters.TriggerSource != nil {
		where = append(where, fmt.Sprintf("trigger_source = $%d", argN))
		args = append(args, *filters.TriggerSource)
		argN++
	}
	if filters.RiskLevel != nil {
		where = append(where, fmt.Sprintf("risk_level = $%d", argN))
		args = append(args, *filters.RiskLevel)
		argN++
	}
	if len(filters.RiskLevels) > 0 {
		placeholders := make([]string, len(filters.RiskLevels))
		for i := range filters.RiskLevels {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, filters.RiskLevels[i])
			argN++
		}
		where = append(where, fmt.Sprintf("risk_level IN (%s)", strings.Join(placeholders, ", ")))
	}

	whereClause := "WHERE " + strings.Join(where, " AND ")

	// 计算总数
	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM incidents
		%s
	`, whereClause)

	var total int
	err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	// 分页处理
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT %s
		FROM incidents
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, incidentColumns, whereClause, argN, argN+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	incidents := []*models.Incident{}
	for rows.Next() {
		incident, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate incidents: %w", err)
	}

	return incidents, total, nil
}

// GetRecentIncident 获取用户最近的活跃事件（用于去重检查）
// 检查最近 N 秒内是否已有同来源的活跃事件
func (r *IncidentsRepository) GetRecentIncident(ctx context.Context, userID, triggerSource string, withinSeconds int) (*models.Incident, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if triggerSource == "" {
		return nil, fmt.Errorf("trigger_source is required")
	}

	thresholdTime := time.Now().Add(-time.Duration(withinSeconds) * time.Second)

	query := fmt.Sprintf(`
		SELECT %s
		FROM incidents
		WHERE user_id = $1
		  AND trigger_source = $2
		  AND created_at > $3
		  AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, incidentColumns)

	row := r.db.QueryRowContext(ctx, query, userID, triggerSource, thresholdTime)
	incident, err := scanIncident(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 没有找到最近的活跃事件
		}
		return nil, fmt.Errorf("failed to query recent incident: %w", err)
	}

	return incident, nil
}

// ============================================
// 状态管理（状态机：active → acknowledged → resolved | false_alarm）
// ============================================

// AcknowledgeIncident 确认事件（仅允许从 active 迁移）
func (r *IncidentsRepository) AcknowledgeIncident(ctx context.Context, incidentID, acknowledgedBy string) (*models.Incident, error) {
	if incidentID == "" {
		return nil, fmt.Errorf("incident_id is required")
	}
	if acknowledgedBy == "" {
		return nil, fmt.Errorf("acknowledged_by is required")
	}

	query := `
		UPDATE incidents
		SET status = 'acknowledged',
		    acknowledged_by = $1,
		    acknowledged_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE incident_id = $2
		  AND status = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, acknowledgedBy, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge incident: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 区分"不存在"和"状态不允许"，给调用方明确的错误
		existing, getErr := r.GetIncident(ctx, incidentID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("incident %s cannot be acknowledged from status %q", incidentID, existing.Status)
	}

	return r.GetIncident(ctx, incidentID)
}

// ResolveIncident 关闭事件（仅允许从 acknowledged 迁移；falseAlarm 时标记误报）
func (r *IncidentsRepository) ResolveIncident(ctx context.Context, incidentID string, falseAlarm bool, notes *string) (*models.Incident, error) {
	if incidentID == "" {
		return nil, fmt.Errorf("incident_id is required")
	}

	finalStatus := models.IncidentStatusResolved
	if falseAlarm {
		finalStatus = models.IncidentStatusFalseAlarm
	}

	query := `
		UPDATE incidents
		SET status = $1,
		    resolved_at = CURRENT_TIMESTAMP,
		    notes = COALESCE($2, notes),
		    updated_at = CURRENT_TIMESTAMP
		WHERE incident_id = $3
		  AND status = 'acknowledged'
	`

	result, err := r.db.ExecContext(ctx, query, finalStatus, notes, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve incident: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		existing, getErr := r.GetIncident(ctx, incidentID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("incident %s cannot be resolved from status %q", incidentID, existing.Status)
	}

	return r.GetIncident(ctx, incidentID)
}

// UpdateNotifiedContacts 记录已通知的联系人列表
func (r *IncidentsRepository) UpdateNotifiedContacts(ctx context.Context, incidentID string, contacts []string) error {
	if incidentID == "" {
		return fmt.Errorf("incident_id is required")
	}

	contactsJSON, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("failed to marshal notified contacts: %w", err)
	}

	query := `
		UPDATE incidents
		SET notified_contacts = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE incident_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, contactsJSON, incidentID)
	if err != nil {
		return fmt.Errorf("failed to update notified contacts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("incident not found: incident_id=%s", incidentID)
	}

	return nil
}

// CountActiveIncidents 统计用户当前活跃事件数量
func (r *IncidentsRepository) CountActiveIncidents(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	query := `
		SELECT COUNT(*)
		FROM incidents
		WHERE user_id = $1
		  AND status = 'active'
	`

	var total int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count active incidents: %w", err)
	}

	return total, nil
}

func validTriggerSource(source string) bool {
	switch source {
	case models.TriggerSourceApp, models.TriggerSourceRing, models.TriggerSourceFallDetect, models.TriggerSourceManual:
		return true
	}
	return false
}
