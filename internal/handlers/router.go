package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/satonic/roomtrade/internal/services"
	"go.uber.org/zap"
)

// RouterConfig holds the dependencies of the HTTP API
type RouterConfig struct {
	Sessions       *services.SessionManager
	Auth           *services.AuthService
	Hub            *Hub
	Trades         TradeLister
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates the HTTP API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": cfg.Sessions.Count(),
		})
	})

	r.Post("/api/sessions", CreateSession(cfg.Sessions, cfg.Auth))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		r.Delete("/api/sessions/current", EndSession(cfg.Sessions))
		r.Get("/api/index", GetIndex(cfg.Sessions))
		r.Get("/api/collections/{wallet}", GetCollection(cfg.Sessions))
		r.Get("/api/names/{address}", GetName(cfg.Sessions))
		r.Get("/api/offers", GetOffers(cfg.Sessions))
		r.Post("/api/offers/refresh", RefreshOffers(cfg.Sessions))
		r.Get("/api/trades", GetTrades(cfg.Trades))
		r.Get("/ws", ServeWs(cfg.Hub))
	})

	return r
}

// requestLogger logs each request with zap
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
