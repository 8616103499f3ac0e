package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BharathRai/miraii-backend/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Alert 紧急联系人告警内容
type Alert struct {
	To         string
	IncidentID string
	UserID     string
	Source     string
	RiskLevel  string
	Vitals     *models.Vitals
	Location   *models.Location
	Message    *string
	OccurredAt time.Time
}

// Notifier 告警通知接口
type Notifier interface {
	// SendAlert 发送单条告警
	SendAlert(ctx context.Context, alert *Alert) error
}

// EmailRequest 邮件服务商 API 请求体
type EmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// EmailResponse 邮件服务商 API 响应体
type EmailResponse struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// EmailNotifier 邮件告警客户端
type EmailNotifier struct {
	httpClient  *resty.Client
	fromAddress string
	logger      *zap.Logger
}

// NewEmailNotifier 创建邮件告警客户端
func NewEmailNotifier(baseURL, apiKey, fromAddress string, logger *zap.Logger) *EmailNotifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey)

	return &EmailNotifier{
		httpClient:  client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// SendAlert 发送告警邮件
func (n *EmailNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.To == "" {
		return fmt.Errorf("alert recipient is required")
	}

	request := EmailRequest{
		From:    n.fromAddress,
		To:      []string{alert.To},
		Subject: fmt.Sprintf("🚨 SOS Alert [%s] - Miraii Ring", strings.ToUpper(alert.RiskLevel)),
		Text:    buildAlertBody(alert),
	}

	var response EmailResponse
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/emails")

	if err != nil {
		return fmt.Errorf("failed to call email API: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("email API error: status=%d body=%s", resp.StatusCode(), resp.String())
	}

	n.logger.Info("Alert email sent",
		zap.String("incident_id", alert.IncidentID),
		zap.String("to", alert.To),
		zap.String("email_id", response.ID),
	)

	return nil
}

// buildAlertBody 构建告警邮件正文
func buildAlertBody(alert *Alert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "EMERGENCY SOS ALERT\n\n")
	fmt.Fprintf(&b, "Incident ID: %s\n", alert.IncidentID)
	fmt.Fprintf(&b, "User: %s\n", alert.UserID)
	fmt.Fprintf(&b, "Trigger: %s\n", alert.Source)
	fmt.Fprintf(&b, "Risk Level: %s\n", strings.ToUpper(alert.RiskLevel))
	fmt.Fprintf(&b, "Time: %s\n", alert.OccurredAt.Format(time.RFC3339))

	if alert.Message != nil && *alert.Message != "" {
		fmt.Fprintf(&b, "\nMessage: %s\n", *alert.Message)
	}

	if alert.Vitals != nil {
		fmt.Fprintf(&b, "\nVitals:\n")
		if alert.Vitals.HeartRate != nil {
			fmt.Fprintf(&b, "  Heart Rate: %d bpm\n", *alert.Vitals.HeartRate)
		}
		if alert.Vitals.SpO2 != nil {
			fmt.Fprintf(&b, "  SpO2: %d%%\n", *alert.Vitals.SpO2)
		}
		if alert.Vitals.Temperature != nil {
			fmt.Fprintf(&b, "  Temperature: %.1f°C\n", *alert.Vitals.Temperature)
		}
		if alert.Vitals.BloodPressure != nil {
			fmt.Fprintf(&b, "  Blood Pressure: %s\n", *alert.Vitals.BloodPressure)
		}
	}

	if alert.Location != nil {
		fmt.Fprintf(&b, "\nLocation: %.6f, %.6f\n", alert.Location.Latitude, alert.Location.Longitude)
		if alert.Location.Address != nil {
			fmt.Fprintf(&b, "Address: %s\n", *alert.Location.Address)
		}
		fmt.Fprintf(&b, "Map: https://maps.google.com/?q=%.6f,%.6f\n", alert.Location.Latitude, alert.Location.Longitude)
	}

	fmt.Fprintf(&b, "\nPlease check on the user immediately.\n")

	return b.String()
}
