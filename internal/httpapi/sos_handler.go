package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BharathRai/miraii-backend/internal/detector"
	"github.com/BharathRai/miraii-backend/internal/models"
	"github.com/BharathRai/miraii-backend/internal/repository"
	"github.com/BharathRai/miraii-backend/internal/sos"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20 // 1MB

// SOSHandler SOS 服务 Handler
type SOSHandler struct {
	trigger      *sos.Trigger
	engine       *detector.Engine
	incidentRepo *repository.IncidentsRepository
	logger       *zap.Logger
}

// NewSOSHandler 创建 SOS Handler
func NewSOSHandler(
	trigger *sos.Trigger,
	engine *detector.Engine,
	incidentRepo *repository.IncidentsRepository,
	logger *zap.Logger,
) *SOSHandler {
	return &SOSHandler{
		trigger:      trigger,
		engine:       engine,
		incidentRepo: incidentRepo,
		logger:       logger,
	}
}

// ServeHTTP 分发 /api/v1/sos/incidents/{id}[/acknowledge|/resolve]
func (h *SOSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sos/incidents/")

	switch {
	case strings.HasSuffix(path, "/acknowledge") && r.Method == http.MethodPost:
		incidentID := strings.TrimSuffix(path, "/acknowledge")
		if incidentID == "" || strings.Contains(incidentID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.AcknowledgeIncident(w, r, incidentID)

	case strings.HasSuffix(path, "/resolve") && r.Method == http.MethodPost:
		incidentID := strings.TrimSuffix(path, "/resolve")
		if incidentID == "" || strings.Contains(incidentID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.ResolveIncident(w, r, incidentID)

	case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodGet:
		h.GetIncident(w, r, path)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Health 健康检查
func (h *SOSHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "miraii-sos",
	})
}

// TriggerSOS 手动触发 SOS
func (h *SOSHandler) TriggerSOS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req sos.TriggerRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	incident, err := h.trigger.TriggerSOS(r.Context(), &req)
	if err != nil {
		if errors.Is(err, detector.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("TriggerSOS failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, incident)
}

// DetectFall 单次跌倒判定（调试与固件联调用）
func (h *SOSHandler) DetectFall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var sample models.SensorSample
	if err := readBodyJSON(r, maxBodyBytes, &sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	verdict, err := h.engine.DetectFall(&sample)
	if err != nil {
		if errors.Is(err, detector.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("DetectFall failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}

// ListIncidentsResponse 事件列表响应
type ListIncidentsResponse struct {
	Incidents []*models.Incident `json:"incidents"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`
}

// ListIncidents 查询事件列表
func (h *SOSHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	page := parseInt(r.URL.Query().Get("page"), 1)
	pageSize := parseInt(r.URL.Query().Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	filters := repository.IncidentFilters{}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filters.Status = &status
	}
	if source := strings.TrimSpace(r.URL.Query().Get("trigger_source")); source != "" {
		filters.TriggerSource = &source
	}
	if level := strings.TrimSpace(r.URL.Query().Get("risk_level")); level != "" {
		filters.RiskLevel = &level
	}
	if startStr := strings.TrimSpace(r.URL.Query().Get("start_time")); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			filters.StartTime = &start
		}
	}
	if endStr := strings.TrimSpace(r.URL.Query().Get("end_time")); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			filters.EndTime = &end
		}
	}

	incidents, total, err := h.incidentRepo.ListIncidents(r.Context(), userID, filters, page, pageSize)
	if err != nil {
		h.logger.Error("ListIncidents failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListIncidentsResponse{
		Incidents: incidents,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

// GetIncident 查询单个事件
func (h *SOSHandler) GetIncident(w http.ResponseWriter, r *http.Request, incidentID string) {
	incident, err := h.incidentRepo.GetIncident(r.Context(), incidentID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("GetIncident failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, incident)
}

// AcknowledgeRequest 确认事件请求体
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

// AcknowledgeIncident 确认事件
func (h *SOSHandler) AcknowledgeIncident(w http.ResponseWriter, r *http.Request, incidentID string) {
	var req AcknowledgeRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AcknowledgedBy == "" {
		writeError(w, http.StatusBadRequest, "acknowledged_by is required")
		return
	}

	incident, err := h.incidentRepo.AcknowledgeIncident(r.Context(), incidentID, req.AcknowledgedBy)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not found"):
			writeError(w, http.StatusNotFound, err.Error())
		case strings.Contains(err.Error(), "cannot be acknowledged"):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("AcknowledgeIncident failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, incident)
}

// ResolveRequest 关闭事件请求体
type ResolveRequest struct {
	FalseAlarm bool    `json:"false_alarm"`
	Notes      *string `json:"notes,omitempty"`
}

// ResolveIncident 关闭事件
func (h *SOSHandler) ResolveIncident(w http.ResponseWriter, r *http.Request, incidentID string) {
	var req ResolveRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	incident, err := h.incidentRepo.ResolveIncident(r.Context(), incidentID, req.FalseAlarm, req.Notes)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not found"):
			writeError(w, http.StatusNotFound, err.Error())
		case strings.Contains(err.Error(), "cannot be resolved"):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("ResolveIncident failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, incident)
}
