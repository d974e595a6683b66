package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/traffic"
)

// RouterConfig wires the handlers and middleware into a router.
type RouterConfig struct {
	Handler        *Handler
	Admin          *AdminHandler
	Logger         *zap.Logger
	Limiter        *rate.Limiter
	Tracker        *traffic.Tracker
	InFlight       *InFlightTracker
	RequestTimeout time.Duration
}

// NewRouter builds the service routes:
//
//	GET  /health, /metrics
//	GET  /widgets/{id}, /widgets/{id}/fragment   (rate limited, timed out)
//	POST /admin/login
//	GET  /admin/widgets/{id}, PUT /admin/widgets/{id}   (bearer token)
func NewRouter(cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	inFlight := cfg.InFlight
	if inFlight == nil {
		inFlight = &InFlightTracker{}
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(InFlightMiddleware(inFlight))
	router.HandleFunc("/health", cfg.Handler.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	widgets := router.PathPrefix("/widgets").Subrouter()
	widgets.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	if cfg.RequestTimeout > 0 {
		widgets.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	widgets.HandleFunc("/{id}", cfg.Handler.GetWidget).Methods(http.MethodGet)
	widgets.HandleFunc("/{id}/fragment", cfg.Handler.GetWidgetFragment).Methods(http.MethodGet)

	if cfg.Admin != nil {
		admin := router.PathPrefix("/admin").Subrouter()
		admin.HandleFunc("/login", cfg.Admin.Login).Methods(http.MethodPost)
		protected := admin.PathPrefix("/widgets").Subrouter()
		protected.Use(RequireAdmin(cfg.Admin.auth))
		protected.HandleFunc("/{id}", cfg.Admin.GetWidget).Methods(http.MethodGet)
		protected.HandleFunc("/{id}", cfg.Admin.PutWidget).Methods(http.MethodPut)
	}
	return router
}
