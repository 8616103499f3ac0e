package models

import (
	"encoding/json"
	"time"
)

// 事件触发来源
const (
	TriggerSourceApp        = "app"         // App 内手动按钮
	TriggerSourceRing       = "ring"        // 戒指实体按键
	TriggerSourceFallDetect = "fall_detect" // 自动跌倒检测
	TriggerSourceManual     = "manual"      // 其它手动触发
)

// 事件状态（状态机：active → acknowledged → resolved | false_alarm）
const (
	IncidentStatusActive       = "active"
	IncidentStatusAcknowledged = "acknowledged"
	IncidentStatusResolved     = "resolved"
	IncidentStatusFalseAlarm   = "false_alarm"
)

// Location 位置信息
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   *string  `json:"address,omitempty"`
}

// Incident SOS 事件（对应 incidents 表）
type Incident struct {
	IncidentID     string          `json:"incident_id" db:"incident_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	TriggerSource  string          `json:"trigger_source" db:"trigger_source"`
	RiskLevel      string          `json:"risk_level" db:"risk_level"`
	Status         string          `json:"status" db:"status"`
	Vitals         json.RawMessage `json:"vitals,omitempty" db:"vitals"`             // JSONB
	Location       json.RawMessage `json:"location,omitempty" db:"location"`         // JSONB
	TriggerData    json.RawMessage `json:"trigger_data" db:"trigger_data"`           // JSONB，触发时的传感器/判定快照
	NotifiedContacts json.RawMessage `json:"notified_contacts" db:"notified_contacts"` // JSONB 数组
	Message        *string         `json:"message,omitempty" db:"message"`
	AcknowledgedBy *string         `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	Notes          *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IncidentTriggerData 触发数据快照（JSONB 结构）
type IncidentTriggerData struct {
	FallDetected   bool     `json:"fall_detected"`
	Confidence     *float64 `json:"confidence,omitempty"`
	FallType       *string  `json:"fall_type,omitempty"`
	AccelMagnitude *float64 `json:"accel_magnitude,omitempty"`
	HeartRate      *int     `json:"heart_rate,omitempty"`
	SpO2           *int     `json:"spo2,omitempty"`
	Source         string   `json:"source"` // "ring" 固件来源标识
}
