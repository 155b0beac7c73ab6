package handler

import (
	"context"
	"net/http"
	"sort"

	"chat-auth-service/internal/config"
	"chat-auth-service/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// HealthChecker reports failing dependencies by name. An empty map is healthy.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// requireHTTPS rejects any request that wasn’t made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"success":false,"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(authHandler *AuthHandler, chatHandler *ChatHandler, health HealthChecker, cfg config.ServerConfig, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.EnableTLS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, logger, http.StatusNotFound, Response{Success: false, Error: "endpoint not found"})
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, logger, http.StatusMethodNotAllowed, Response{Success: false, Error: "method not allowed"})
	})

	router.Get("/health", healthHandler(health, logger))

	routes := func(r chi.Router) {
		r.Route("/auth", authHandler.RegisterRoutes)
		r.Route("/chats", chatHandler.RegisterRoutes)
	}
	router.Route("/api", routes)
	// Unprefixed /auth and /chats stay mounted for older clients.
	router.Group(routes)

	return router
}

func healthHandler(health HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := health.HealthCheck(r.Context())
		if len(failures) == 0 {
			respondWithJSON(w, logger, http.StatusOK, successResponse(map[string]string{
				"status":  "healthy",
				"service": "chat-auth-service",
			}, ""))
			return
		}

		// Causes can carry hosts and DSNs; they go to the log only.
		names := make([]string, 0, len(failures))
		for name, err := range failures {
			names = append(names, name)
			util.Warn("Health check failed",
				util.String("component", name),
				util.ErrorField(err))
		}
		sort.Strings(names)

		respondWithJSON(w, logger, http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "unhealthy",
			Data:    map[string]interface{}{"status": "unhealthy", "failing": names},
		})
	}
}
