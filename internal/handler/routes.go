package handler

import (
	"net/http"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/livekit/protocol/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionCounter reports how many calls this instance is handling.
type SessionCounter interface {
	ActiveSessions() int
}

// RouterConfig carries what the HTTP layer needs from main.
type RouterConfig struct {
	Calls        CallOrchestrator
	Sessions     SessionCounter
	WebhookKeys  auth.KeyProvider
	EngineSecret string
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// HandlerManager owns the handlers and their routes.
type HandlerManager struct {
	cfg     RouterConfig
	webhook *LiveKitWebhookHandler
	session *SessionHandler
}

func NewHandlerManager(cfg RouterConfig) *HandlerManager {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &HandlerManager{
		cfg:     cfg,
		webhook: NewLiveKitWebhookHandler(cfg.Calls, cfg.WebhookKeys),
		session: NewSessionHandler(cfg.Calls),
	}
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	router.HandleFunc("/health", hm.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(hm.cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/livekit/webhook", hm.webhook.HandleLiveKitWebhook).Methods(http.MethodPost)

	hm.SetupAPIRoutes(router)

	logger.Base().Info("all application routes registered")
}

// SetupAPIRoutes sets up the engine API behind bearer auth
func (hm *HandlerManager) SetupAPIRoutes(router *mux.Router) {
	if hm.cfg.EngineSecret == "" {
		logger.Base().Warn("ENGINE_SHARED_SECRET not set, engine API is unauthenticated")
	}

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(LoggingMiddleware)
	apiRouter.Use(ValidationMiddleware)
	apiRouter.Use(EngineAuthMiddleware(hm.cfg.EngineSecret))

	hm.session.SetupSessionRoutes(apiRouter)
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

func (hm *HandlerManager) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if hm.cfg.Sessions != nil {
		resp.ActiveSessions = hm.cfg.Sessions.ActiveSessions()
	}
	writeJSON(w, http.StatusOK, resp)
}
