package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BharathRai/miraii-backend/internal/companion"
	"github.com/BharathRai/miraii-backend/internal/models"

	"go.uber.org/zap"
)

// CompanionHandler Companion 服务 Handler
type CompanionHandler struct {
	replier companion.Replier
	memory  *companion.Memory
	caps    companion.Capabilities
	logger  *zap.Logger
}

// NewCompanionHandler 创建 Companion Handler
func NewCompanionHandler(replier companion.Replier, memory *companion.Memory, caps companion.Capabilities, logger *zap.Logger) *CompanionHandler {
	return &CompanionHandler{
		replier: replier,
		memory:  memory,
		caps:    caps,
		logger:  logger,
	}
}

// ServeHTTP 分发 /conversations 与 /conversations/{id}
func (h *CompanionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if strings.Contains(conversationID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if conversationID == "" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListConversations(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetConversation(w, r, conversationID)
	case http.MethodDelete:
		h.DeleteConversation(w, r, conversationID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Root 服务信息与能力报告（任一能力缺失时 status 为 degraded）
func (h *CompanionHandler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := "ok"
	if !h.caps.LLM || !h.caps.TTS {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":      "elai-companion",
		"status":       status,
		"capabilities": h.caps,
	})
}

// TextReply 文本对话
func (h *CompanionHandler) TextReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.CompanionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reply, err := h.replier.TextReply(r.Context(), &req)
	if err != nil {
		h.writeCompanionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// VoiceReply 语音对话（回复带 base64 编码的 MP3 音频）
func (h *CompanionHandler) VoiceReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.CompanionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reply, err := h.replier.VoiceReply(r.Context(), &req)
	if err != nil {
		h.writeCompanionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// ConversationResponse 会话历史响应
type ConversationResponse struct {
	ConversationID string                       `json:"conversation_id"`
	Messages       []models.ConversationMessage `json:"messages"`
}

// ConversationListResponse 会话列表响应
type ConversationListResponse struct {
	Conversations []string `json:"conversations"`
	Count         int      `json:"count"`
}

// ListConversations 列出现存会话
func (h *CompanionHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	ids, err := h.memory.ListConversations(r.Context(), limit)
	if err != nil {
		h.logger.Error("ListConversations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ConversationListResponse{
		Conversations: ids,
		Count:         len(ids),
	})
}

// GetConversation 查询会话历史
func (h *CompanionHandler) GetConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	exists, err := h.memory.ConversationExists(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("GetConversation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
		return
	}

	messages, err := h.memory.GetHistory(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("GetConversation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ConversationResponse{
		ConversationID: conversationID,
		Messages:       messages,
	})
}

// DeleteConversation 删除会话历史
func (h *CompanionHandler) DeleteConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	if err := h.memory.DeleteConversation(r.Context(), conversationID); err != nil {
		h.logger.Error("DeleteConversation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"status":          "deleted",
	})
}

// writeCompanionError 按错误类型映射 HTTP 状态码
// 模型/合成失败一律透传给调用方，不静默降级
func (h *CompanionHandler) writeCompanionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, companion.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, companion.ErrModelUnavailable):
		h.logger.Error("Model call failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, companion.ErrSynthesis):
		h.logger.Error("Speech synthesis failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("Companion request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
