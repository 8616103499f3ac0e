package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus 指标（/metrics 端点导出）
var (
	SensorEventsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "miraii_sensor_events_processed_total",
		Help: "Total number of ring sensor events processed",
	})

	SensorEventsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "miraii_sensor_events_rejected_total",
		Help: "Total number of ring sensor events rejected as malformed",
	})

	FallsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miraii_falls_detected_total",
		Help: "Total number of falls detected, by fall type",
	}, []string{"fall_type"})

	IncidentsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miraii_incidents_opened_total",
		Help: "Total number of SOS incidents opened, by trigger source and risk level",
	}, []string{"trigger_source", "risk_level"})

	SOSTriggersSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miraii_sos_triggers_suppressed_total",
		Help: "Total number of SOS triggers suppressed by the dedup window, by trigger source",
	}, []string{"trigger_source"})

	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "miraii_notifications_sent_total",
		Help: "Total number of emergency contact notifications delivered",
	})

	NotificationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "miraii_notifications_failed_total",
		Help: "Total number of emergency contact notifications that failed",
	})

	CompanionReplies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miraii_companion_replies_total",
		Help: "Total number of companion replies served, by mode (text, voice)",
	}, []string{"mode"})

	CompanionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miraii_companion_failures_total",
		Help: "Total number of companion pipeline failures, by stage (model, synthesis)",
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(
		SensorEventsProcessed,
		SensorEventsRejected,
		FallsDetected,
		IncidentsOpened,
		SOSTriggersSuppressed,
		NotificationsSent,
		NotificationsFailed,
		CompanionReplies,
		CompanionFailures,
	)
}
