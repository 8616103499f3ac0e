package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSOSRoutes 注册 SOS 服务路由
func (r *Router) RegisterSOSRoutes(h *SOSHandler) {
	r.Handle("/api/v1/health", h.Health)
	r.Handle("/api/v1/sos/trigger", h.TriggerSOS)
	r.Handle("/api/v1/sos/detect-fall", h.DetectFall)
	r.Handle("/api/v1/sos/incidents", h.ListIncidents)
	r.HandleHandler("/api/v1/sos/incidents/", h)
}

// RegisterCompanionRoutes 注册 Companion 服务路由
func (r *Router) RegisterCompanionRoutes(h *CompanionHandler) {
	r.Handle("/", h.Root)
	r.Handle("/text/reply", h.TextReply)
	r.Handle("/voice/reply", h.VoiceReply)
	r.HandleHandler("/conversations/", h)
}
