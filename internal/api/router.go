package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ghalamif/twinfleet/internal/ports"
)

// NewRouter mounts the status API. metrics may be nil when exposition is
// served elsewhere.
func NewRouter(h *Handler, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.obs))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/equipment", h.ListEquipment)
		r.Route("/equipment/{id}", func(r chi.Router) {
			r.Get("/", h.GetEquipment)
			r.Get("/snapshots", h.ListSnapshots)
			r.Post("/speed", h.SetSpeed)
			r.Post("/maintenance", h.Maintain)
			r.Post("/upgrades", h.RecordUpgrade)
			r.Post("/replacements", h.RecordReplacement)
			r.Post("/lifecycle/reset", h.ResetLifecycle)
			r.Post("/decommission", h.Decommission)
		})
		r.Get("/sensors/{id}/readings", h.ListReadings)
	})

	return r
}

func accessLog(obs ports.Observability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			obs.LogInfo("http_request",
				ports.Field{Key: "method", Value: r.Method},
				ports.Field{Key: "path", Value: r.URL.Path},
				ports.Field{Key: "status", Value: ww.Status()},
				ports.Field{Key: "bytes", Value: ww.BytesWritten()},
				ports.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
				ports.Field{Key: "request_id", Value: middleware.GetReqID(r.Context())})
		})
	}
}
