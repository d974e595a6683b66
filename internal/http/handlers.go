package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/render"
	"github.com/kjstillabower/weather-widget/internal/traffic"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

// HealthConfig holds thresholds and optional probes for the health handler.
type HealthConfig struct {
	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// Breaker, when set, is reported under checks.circuitBreaker.
	Breaker *circuitbreaker.CircuitBreaker
	// PendingFetches, when set, reports lookups waiting on upstream under traffic.pendingFetches.
	PendingFetches func() int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry     *widget.Registry
	tracker      *traffic.Tracker
	state        *lifecycle.State
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker, state and healthConfig may be nil.
func NewHandler(registry *widget.Registry, tracker *traffic.Tracker, state *lifecycle.State, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:     registry,
		tracker:      tracker,
		state:        state,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// widgetResponse is the body of GET /widgets/{id}.
type widgetResponse struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Render render.Model `json:"render"`
}

// display looks up the widget named in the route and renders it. It writes a 404 and
// returns false for unknown IDs.
func (h *Handler) display(w http.ResponseWriter, r *http.Request) (widgetResponse, bool) {
	id := mux.Vars(r)["id"]
	inst, ok := h.registry.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "WIDGET_NOT_FOUND", "unknown widget: "+id)
		return widgetResponse{}, false
	}
	title, model := inst.Display(r.Context())
	h.recordOutcome(model.Kind)
	return widgetResponse{ID: id, Title: title, Render: model}, true
}

// recordOutcome feeds the health error rate. Configuration errors say nothing about upstream
// health and are not counted.
func (h *Handler) recordOutcome(kind render.Kind) {
	if h.tracker == nil {
		return
	}
	switch kind {
	case render.KindServiceUnavailable:
		h.tracker.RecordError()
	case render.KindRendered, render.KindNoData:
		h.tracker.RecordSuccess()
	}
}

// GetWidget handles GET /widgets/{id}. Every render kind is a 200: failures are display states.
func (h *Handler) GetWidget(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.display(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetWidgetFragment handles GET /widgets/{id}/fragment.
func (h *Handler) GetWidgetFragment(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.display(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := renderFragment(w, resp.Title, resp.Render); err != nil {
		observability.WidgetLogger(r.Context(), h.logger, resp.ID).Error("fragment render failed", zap.Error(err))
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if h.healthConfig.Breaker != nil {
			checks["circuitBreaker"] = h.healthConfig.Breaker.State().String()
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"widgets":   h.registry.Len(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if summary := h.trafficSummary(); len(summary) > 0 {
		resp["traffic"] = summary
	}
	if h.state != nil {
		resp["uptimeSeconds"] = int64(h.state.Uptime().Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// trafficSummary reports request outcomes over the degraded window and upstream fetches in
// progress. Empty when neither source is configured.
func (h *Handler) trafficSummary() map[string]interface{} {
	summary := map[string]interface{}{}
	if h.healthConfig == nil {
		return summary
	}
	if window := h.healthConfig.DegradedWindow; h.tracker != nil && window > 0 {
		errs, total := h.tracker.ErrorRate(window)
		summary["windowSeconds"] = int64(window.Seconds())
		summary["requests"] = h.tracker.RequestCount(window)
		summary["errors"] = errs
		summary["lookups"] = total
		summary["denied"] = h.tracker.DenialCount(window)
	}
	if h.healthConfig.PendingFetches != nil {
		summary["pendingFetches"] = h.healthConfig.PendingFetches()
	}
	return summary
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.state != nil && h.state.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.state != nil && !h.state.Ready() {
		return healthResult{"starting", http.StatusServiceUnavailable, "warming"}
	}
	if h.healthConfig != nil && h.tracker != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		if h.tracker.Degraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedMinSamples, float64(h.healthConfig.DegradedErrorPct)) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) when the request carries one.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// loggerFrom returns the request-scoped logger, or fallback.
func loggerFrom(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if l := observability.LoggerFromContext(r.Context()); l != nil {
		return l
	}
	return fallback
}
