package models

// Vector3 三轴传感器读数（m/s² 或 rad/s）
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SensorSample 戒指上报的单次传感器快照
type SensorSample struct {
	Accelerometer *Vector3 `json:"accelerometer"`
	Gyroscope     *Vector3 `json:"gyroscope"`
	Timestamp     *int64   `json:"timestamp"` // Unix 时间戳（秒）

	// 可选体征（部分固件版本随传感器数据一起上报）
	HeartRate *int `json:"heart_rate,omitempty"`
	SpO2      *int `json:"spo2,omitempty"`
}

// 跌倒类型
const (
	FallTypeHard  = "hard"
	FallTypeSoft  = "soft"
	FallTypeTrip  = "trip"
	FallTypeOther = "other"
)

// FallVerdict 跌倒检测结果
// Confidence 仅在 FallDetected 为 true 时有意义，范围 [0,1]
type FallVerdict struct {
	FallDetected bool    `json:"fall_detected"`
	Confidence   float64 `json:"confidence"`
	FallType     string  `json:"fall_type,omitempty"`
}

// AnnotatedEvent 标注后的传感器事件（process_sensor_event 的输出）
type AnnotatedEvent struct {
	Sample         SensorSample `json:"sample"`
	AccelMagnitude float64      `json:"accel_magnitude"` // 合加速度（m/s²）
	GyroMagnitude  float64      `json:"gyro_magnitude"`  // 合角速度（rad/s）
	FreeFall       bool         `json:"free_fall"`       // 检测到失重
	Impact         bool         `json:"impact"`          // 检测到冲击
	Anomalies      []string     `json:"anomalies"`       // 异常标记列表
	ProcessedAt    int64        `json:"processed_at"`
}

// Vitals 体征读数（字段均可选，缺失表示该项未测量）
type Vitals struct {
	HeartRate     *int     `json:"heart_rate,omitempty"`     // bpm
	SpO2          *int     `json:"spo2,omitempty"`           // %
	Temperature   *float64 `json:"temperature,omitempty"`    // °C
	BloodPressure *string  `json:"blood_pressure,omitempty"` // "120/80" 格式
}

// RiskLevel 风险等级（全序：low < medium < high < critical）
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Rank 返回风险等级的序数（用于比较）
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	default:
		return -1
	}
}

// Valid 检查风险等级是否为四个定义值之一
func (r RiskLevel) Valid() bool {
	return r.Rank() >= 0
}
