package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/server/api"
)

func setupRouter(server *api.Server, cfg *ServeConfig, logger logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.WriteTimeout))
	r.Use(middleware.RequestSize(cfg.MaxRequestSize))

	// CORS middleware
	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Compression
	r.Use(middleware.Compress(5))

	// Health and readiness
	r.Get("/health", server.HandleHealth)
	r.Get("/openapi.json", server.HandleOpenAPI)

	// Circuit info
	r.Get("/circuits", server.HandleListCircuits)
	r.Get("/circuits/{circuit}", server.HandleGetCircuit)

	// Proof operations
	r.Post("/prove/{circuit}", server.HandleProve)
	r.Post("/verify/{circuit}", server.HandleVerify)

	r.Route("/v1", func(r chi.Router) {
		// Confidential gateway
		r.Post("/protected-data", server.HandleProtectData)
		r.Post("/grants", server.HandleGrantAccess)
		r.Post("/tasks", server.HandleProcess)
		r.Get("/network/{chainId}", server.HandleNetwork)

		// Verification sessions
		r.Post("/sessions", server.HandleCreateSession)
		r.Get("/sessions/{id}", server.HandleGetSession)
		r.Delete("/sessions/{id}", server.HandleDeleteSession)
		r.Post("/sessions/{id}/run", server.HandleRunSession)
		r.Post("/sessions/{id}/reset", server.HandleResetSession)

		r.Get("/ledger/{subject}", server.HandleGetVerification)
		r.Get("/logs", server.HandleLogs)
	})

	// Pprof (debug only)
	if cfg.EnablePprof {
		r.Mount("/debug", middleware.Profiler())
	}

	return r
}
