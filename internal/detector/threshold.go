package detector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BharathRai/miraii-backend/internal/models"
)

// 跌倒判定阈值
// 地球重力约 9.81 m/s²；静止佩戴时合加速度在重力附近波动
const (
	impactThreshold    = 24.5 // 冲击阈值（约 2.5g），硬着地
	freeFallThreshold  = 3.0  // 失重阈值，坠落过程中合加速度趋近于零
	gyroSpikeThreshold = 4.0  // 角速度尖峰阈值（rad/s），身体翻转
	gyroTumbleThreshold = 6.5 // 剧烈翻滚阈值，单独触发绊倒判定
)

// ThresholdDetector 基于阈值规则的跌倒判定
// 判定分支（按优先级）：
//  1. 冲击：合加速度 ≥ 24.5 m/s²
//  2. 失重 + 翻转：合加速度 ≤ 3.0 m/s² 且角速度 ≥ 4.0 rad/s
//  3. 单独失重：合加速度 ≤ 3.0 m/s²
//  4. 剧烈翻滚：角速度 ≥ 6.5 rad/s 且合加速度明显偏离重力
type ThresholdDetector struct{}

// NewThresholdDetector 创建阈值跌倒判定器
func NewThresholdDetector() *ThresholdDetector {
	return &ThresholdDetector{}
}

// DetectFall 按阈值规则判定跌倒
func (d *ThresholdDetector) DetectFall(sample *models.SensorSample) (*models.FallVerdict, error) {
	accelMag := magnitude(sample.Accelerometer)
	gyroMag := magnitude(sample.Gyroscope)

	switch {
	case accelMag >= impactThreshold:
		// 冲击越强置信度越高
		conf := 0.6 + 0.4*(accelMag-impactThreshold)/impactThreshold
		return &models.FallVerdict{
			FallDetected: true,
			Confidence:   clamp01(conf),
			FallType:     models.FallTypeHard,
		}, nil

	case accelMag <= freeFallThreshold && gyroMag >= gyroSpikeThreshold:
		conf := 0.55 + 0.3*(freeFallThreshold-accelMag)/freeFallThreshold
		return &models.FallVerdict{
			FallDetected: true,
			Confidence:   clamp01(conf),
			FallType:     models.FallTypeSoft,
		}, nil

	case accelMag <= freeFallThreshold:
		conf := 0.4 + 0.25*(freeFallThreshold-accelMag)/freeFallThreshold
		return &models.FallVerdict{
			FallDetected: true,
			Confidence:   clamp01(conf),
			FallType:     models.FallTypeOther,
		}, nil

	case gyroMag >= gyroTumbleThreshold && deviatesFromGravity(accelMag):
		conf := 0.35 + 0.3*(gyroMag-gyroTumbleThreshold)/gyroTumbleThreshold
		return &models.FallVerdict{
			FallDetected: true,
			Confidence:   clamp01(conf),
			FallType:     models.FallTypeTrip,
		}, nil
	}

	return &models.FallVerdict{FallDetected: false, Confidence: 0}, nil
}

// deviatesFromGravity 合加速度是否明显偏离静止重力读数
func deviatesFromGravity(accelMag float64) bool {
	const gravity = 9.81
	diff := accelMag - gravity
	if diff < 0 {
		diff = -diff
	}
	return diff > 5.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ThresholdRiskScorer 基于阈值规则的体征风险评分
// 各项体征独立评级，取最高级作为整体风险
type ThresholdRiskScorer struct{}

// NewThresholdRiskScorer 创建阈值风险评分器
func NewThresholdRiskScorer() *ThresholdRiskScorer {
	return &ThresholdRiskScorer{}
}

// ScoreRisk 体征映射到风险等级
func (s *ThresholdRiskScorer) ScoreRisk(vitals *models.Vitals) (models.RiskLevel, error) {
	level := models.RiskLevelLow

	if vitals.HeartRate != nil {
		level = maxLevel(level, scoreHeartRate(*vitals.HeartRate))
	}
	if vitals.SpO2 != nil {
		level = maxLevel(level, scoreSpO2(*vitals.SpO2))
	}
	if vitals.Temperature != nil {
		level = maxLevel(level, scoreTemperature(*vitals.Temperature))
	}
	if vitals.BloodPressure != nil {
		systolic, diastolic, err := parseBloodPressure(*vitals.BloodPressure)
		if err != nil {
			return "", err
		}
		level = maxLevel(level, scoreBloodPressure(systolic, diastolic))
	}

	return level, nil
}

func scoreHeartRate(hr int) models.RiskLevel {
	switch {
	case hr >= 140 || hr <= 40:
		return models.RiskLevelCritical
	case hr >= 120 || hr <= 50:
		return models.RiskLevelHigh
	case hr >= 100 || hr <= 55:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func scoreSpO2(spo2 int) models.RiskLevel {
	switch {
	case spo2 < 85:
		return models.RiskLevelCritical
	case spo2 < 90:
		return models.RiskLevelHigh
	case spo2 < 95:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func scoreTemperature(temp float64) models.RiskLevel {
	switch {
	case temp >= 40.0 || temp <= 34.0:
		return models.RiskLevelHigh
	case temp >= 38.0 || temp <= 35.0:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func scoreBloodPressure(systolic, diastolic int) models.RiskLevel {
	switch {
	case systolic >= 180 || diastolic >= 120 || systolic <= 80:
		return models.RiskLevelCritical
	case systolic >= 160 || diastolic >= 100 || systolic <= 90:
		return models.RiskLevelHigh
	case systolic >= 140 || diastolic >= 90:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// parseBloodPressure 解析 "120/80" 格式的血压字符串
func parseBloodPressure(bp string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(bp), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("blood_pressure must be \"systolic/diastolic\", got %q", bp)
	}

	systolic, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid systolic value in %q", bp)
	}
	diastolic, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid diastolic value in %q", bp)
	}

	if systolic <= 0 || diastolic <= 0 || systolic > 300 || diastolic > 200 {
		return 0, 0, fmt.Errorf("blood_pressure out of range: %q", bp)
	}

	return systolic, diastolic, nil
}

func maxLevel(a, b models.RiskLevel) models.RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
