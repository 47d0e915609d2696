// Package rest wires the HTTP surface of the sync server: map and
// operation endpoints under /api/v1, the WebSocket upgrade path, and
// the health and metrics endpoints.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/http/rest/handlers"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/http/rest/middleware"
	ws "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/websocket"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/auth"
)

// RouterConfig carries the collaborators and switches the router needs.
type RouterConfig struct {
	MapHandler       *handlers.MapHandler
	OperationHandler *handlers.OperationHandler
	WSServer         *ws.Server
	JWTService       *auth.JWTService
	AllowAnon        bool
	EnableCORS       bool
	EnableMetrics    bool
	Logger           *zap.Logger
}

// NewRouter configures all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(cfg.Logger))

	if cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Client-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", handleHealth)
	if cfg.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	// WebSocket upgrade; the handler authenticates the session itself
	// since browsers cannot set headers on upgrade requests.
	router.Get("/ws/maps/{mapID}", func(w http.ResponseWriter, r *http.Request) {
		cfg.WSServer.HandleConnection(w, r, chi.URLParam(r, "mapID"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.JWTService, cfg.AllowAnon, cfg.Logger))

		r.Post("/maps", cfg.MapHandler.CreateMap)
		r.Get("/maps/{mapID}", cfg.MapHandler.GetMap)
		r.Get("/maps/{mapID}/snapshot", cfg.MapHandler.GetSnapshot)
		r.Get("/maps/{mapID}/operations", cfg.MapHandler.GetOperations)
		r.Get("/maps/{mapID}/history", cfg.MapHandler.GetHistory)
		r.Get("/maps/{mapID}/conflicts", cfg.MapHandler.GetConflicts)

		r.Post("/operations", cfg.OperationHandler.SubmitOperation)
		r.Get("/operations/{operationID}", cfg.MapHandler.GetOperation)
		r.Post("/operations/{operationID}/rollback", cfg.OperationHandler.RollbackOperation)
	})

	return router
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
