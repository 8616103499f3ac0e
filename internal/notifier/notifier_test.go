package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BharathRai/miraii-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(i int) *int          { return &i }
func stringPtr(s string) *string { return &s }

func TestSendAlert_Success(t *testing.T) {
	var received EmailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(EmailResponse{ID: "email-123"})
	}))
	defer server.Close()

	n := NewEmailNotifier(server.URL, "test-key", "alerts@miraii.app", zap.NewNop())

	err := n.SendAlert(context.Background(), &Alert{
		To:         "mom@example.com",
		IncidentID: "inc-1",
		UserID:     "user-1",
		Source:     "fall_detect",
		RiskLevel:  "high",
		Vitals: &models.Vitals{
			HeartRate: intPtr(122),
			SpO2:      intPtr(91),
		},
		Location: &models.Location{
			Latitude:  12.9716,
			Longitude: 77.5946,
			Address:   stringPtr("Bengaluru"),
		},
		OccurredAt: time.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, "alerts@miraii.app", received.From)
	assert.Equal(t, []string{"mom@example.com"}, received.To)
	assert.Contains(t, received.Subject, "HIGH")
	assert.Contains(t, received.Text, "inc-1")
	assert.Contains(t, received.Text, "Heart Rate: 122 bpm")
	assert.Contains(t, received.Text, "SpO2: 91%")
	assert.Contains(t, received.Text, "maps.google.com")
}

func TestSendAlert_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "invalid api key"}`))
	}))
	defer server.Close()

	n := NewEmailNotifier(server.URL, "bad-key", "alerts@miraii.app", zap.NewNop())

	err := n.SendAlert(context.Background(), &Alert{
		To:         "mom@example.com",
		IncidentID: "inc-1",
		RiskLevel:  "high",
		OccurredAt: time.Now(),
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "email API error")
}

func TestSendAlert_MissingRecipient(t *testing.T) {
	n := NewEmailNotifier("http://localhost:9", "key", "alerts@miraii.app", zap.NewNop())

	err := n.SendAlert(context.Background(), &Alert{IncidentID: "inc-1"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "recipient is required")
}
