package detector

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/BharathRai/miraii-backend/internal/models"

	"go.uber.org/zap"
)

// ErrInvalidInput 输入缺失必填字段或包含非数值
var ErrInvalidInput = errors.New("invalid input")

// FallDetector 跌倒判定策略（可替换：规则阈值或训练模型）
type FallDetector interface {
	// DetectFall 对单次已校验的传感器快照做跌倒判定
	DetectFall(sample *models.SensorSample) (*models.FallVerdict, error)
}

// RiskScorer 风险评分策略（可替换：规则阈值或训练模型）
type RiskScorer interface {
	// ScoreRisk 将体征映射到四级风险等级
	ScoreRisk(vitals *models.Vitals) (models.RiskLevel, error)
}

// Engine 检测引擎：输入校验 + 策略委派 + 事件标注
// 安全关键路径：畸形输入必须报错，绝不能静默返回"无跌倒"
type Engine struct {
	detector FallDetector
	scorer   RiskScorer
	logger   *zap.Logger
}

// NewEngine 创建检测引擎
func NewEngine(detector FallDetector, scorer RiskScorer, logger *zap.Logger) *Engine {
	return &Engine{
		detector: detector,
		scorer:   scorer,
		logger:   logger,
	}
}

// DetectFall 校验传感器快照并委派给跌倒判定策略
func (e *Engine) DetectFall(sample *models.SensorSample) (*models.FallVerdict, error) {
	if err := validateSample(sample); err != nil {
		return nil, err
	}

	verdict, err := e.detector.DetectFall(sample)
	if err != nil {
		return nil, fmt.Errorf("fall detection failed: %w", err)
	}

	if verdict.FallDetected {
		e.logger.Info("Fall detected",
			zap.Float64("confidence", verdict.Confidence),
			zap.String("fall_type", verdict.FallType),
			zap.Int64("timestamp", *sample.Timestamp),
		)
	}

	return verdict, nil
}

// ProcessSensorEvent 标注单次传感器事件（计算合量、打异常标记）
func (e *Engine) ProcessSensorEvent(sample *models.SensorSample) (*models.AnnotatedEvent, error) {
	if err := validateSample(sample); err != nil {
		return nil, err
	}

	accelMag := magnitude(sample.Accelerometer)
	gyroMag := magnitude(sample.Gyroscope)

	event := &models.AnnotatedEvent{
		Sample:         *sample,
		AccelMagnitude: accelMag,
		GyroMagnitude:  gyroMag,
		FreeFall:       accelMag <= freeFallThreshold,
		Impact:         accelMag >= impactThreshold,
		Anomalies:      []string{},
		ProcessedAt:    time.Now().Unix(),
	}

	if event.FreeFall {
		event.Anomalies = append(event.Anomalies, "free_fall")
	}
	if event.Impact {
		event.Anomalies = append(event.Anomalies, "impact")
	}
	if gyroMag >= gyroSpikeThreshold {
		event.Anomalies = append(event.Anomalies, "rotation_spike")
	}
	if sample.HeartRate != nil {
		if *sample.HeartRate > 120 {
			event.Anomalies = append(event.Anomalies, "tachycardia")
		} else if *sample.HeartRate < 45 {
			event.Anomalies = append(event.Anomalies, "bradycardia")
		}
	}
	if sample.SpO2 != nil && *sample.SpO2 < 90 {
		event.Anomalies = append(event.Anomalies, "low_spo2")
	}

	return event, nil
}

// CalculateRiskLevel 校验体征并委派给风险评分策略
// 空体征返回 low：没有读数不是畸形输入，只是没有风险证据
func (e *Engine) CalculateRiskLevel(vitals *models.Vitals) (models.RiskLevel, error) {
	if vitals == nil {
		return models.RiskLevelLow, nil
	}
	if err := validateVitals(vitals); err != nil {
		return "", err
	}

	level, err := e.scorer.ScoreRisk(vitals)
	if err != nil {
		return "", fmt.Errorf("risk scoring failed: %w", err)
	}
	if !level.Valid() {
		return "", fmt.Errorf("risk scorer returned undefined level: %q", level)
	}

	return level, nil
}

// validateSample 校验传感器快照的必填字段和数值合法性
func validateSample(sample *models.SensorSample) error {
	if sample == nil {
		return fmt.Errorf("%w: sensor sample is required", ErrInvalidInput)
	}
	if sample.Accelerometer == nil {
		return fmt.Errorf("%w: accelerometer is required", ErrInvalidInput)
	}
	if sample.Gyroscope == nil {
		return fmt.Errorf("%w: gyroscope is required", ErrInvalidInput)
	}
	if sample.Timestamp == nil {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	if !finiteVector(sample.Accelerometer) {
		return fmt.Errorf("%w: accelerometer contains non-numeric values", ErrInvalidInput)
	}
	if !finiteVector(sample.Gyroscope) {
		return fmt.Errorf("%w: gyroscope contains non-numeric values", ErrInvalidInput)
	}
	return nil
}

// validateVitals 校验体征读数的取值范围
func validateVitals(vitals *models.Vitals) error {
	if vitals.HeartRate != nil && (*vitals.HeartRate <= 0 || *vitals.HeartRate > 300) {
		return fmt.Errorf("%w: heart_rate out of range: %d", ErrInvalidInput, *vitals.HeartRate)
	}
	if vitals.SpO2 != nil && (*vitals.SpO2 <= 0 || *vitals.SpO2 > 100) {
		return fmt.Errorf("%w: spo2 out of range: %d", ErrInvalidInput, *vitals.SpO2)
	}
	if vitals.Temperature != nil && (math.IsNaN(*vitals.Temperature) || *vitals.Temperature < 20 || *vitals.Temperature > 45) {
		return fmt.Errorf("%w: temperature out of range: %f", ErrInvalidInput, *vitals.Temperature)
	}
	if vitals.BloodPressure != nil {
		if _, _, err := parseBloodPressure(*vitals.BloodPressure); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

func magnitude(v *models.Vector3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func finiteVector(v *models.Vector3) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
