// Package httpapi exposes the tracker's service-request surface over
// HTTP: activation, goal/trajectory/constraint updates, status, and a
// Prometheus scrape endpoint, routed with chi the way the rest of the
// Asgard stack does (internal/api/router.go).
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PossumXI/Asgard/mpctracker/internal/diagnostics"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

// Core is the subset of the orchestrator's API the HTTP surface drives;
// kept as an interface so handlers can be tested against a fake.
type Core interface {
	Activate(lastCmd *types.PositionCommand, estimator types.VehicleState) types.ServiceResult
	Deactivate() types.ServiceResult
	Hover() types.ServiceResult
	SetReference(ref types.SetpointReference) types.ServiceResult
	SetTrajectory(ref types.TrajectoryReference) types.ServiceResult
	StartTrajectoryTracking() types.ServiceResult
	ResumeTrajectoryTracking() types.ServiceResult
	SetConstraints(c types.DynamicConstraints) types.ServiceResult
	SwitchOdometrySource(old, next types.VehicleState) types.ServiceResult
	EnableCallbacks(enabled bool) types.ServiceResult
	Status() types.TrackerStatus
	PredictedHorizon() []types.WorldPoint
	DriftRatio() float64
}

// NewRouter builds the tracker's HTTP surface. streamer may be nil, in
// which case the /ws/diagnostics route is omitted.
func NewRouter(core Core, streamer *diagnostics.Streamer) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handler{core: core}

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(50, 10))

		r.Get("/status", h.status)
		r.Get("/predicted_horizon", h.predictedHorizon)
		r.Get("/drift", h.drift)

		r.Post("/activate", h.activate)
		r.Post("/deactivate", h.deactivate)
		r.Post("/hover", h.hover)
		r.Post("/reference", h.setReference)
		r.Post("/trajectory", h.setTrajectory)
		r.Post("/trajectory/start", h.startTrajectoryTracking)
		r.Post("/trajectory/resume", h.resumeTrajectoryTracking)
		r.Post("/constraints", h.setConstraints)
		r.Post("/odometry_switch", h.switchOdometrySource)
		r.Post("/callbacks", h.enableCallbacks)
	})

	if streamer != nil {
		r.Get("/ws/diagnostics", streamer.HandleWebSocket)
	}

	return r
}
