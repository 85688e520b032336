package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Homedex/internal/api/middlewares"
	"github.com/markdave123-py/Homedex/internal/config"
)

// Handlers groups the route handlers the server mounts.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Manual *handlers.ManualHandler
	Device *handlers.DeviceHandler
	Chat   *handlers.ChatHandler
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, h Handlers) *Server {
	return &Server{httpServer: &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: NewRouter(cfg, h),
	}}
}

// NewRouter mounts the API under /api and the web UI at /. Mutating routes
// require an admin token when authentication is configured.
func NewRouter(cfg *config.Config, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// Serve static files from the web directory
	fileServer := http.FileServer(http.Dir("./web"))
	r.Handle("/*", fileServer)

	var secret []byte
	if cfg.AuthEnabled() {
		secret = []byte(cfg.JWTSecret)
	}

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Get("/health", handlers.Health)
		api.Post("/login", h.Auth.Login)
		api.Get("/devices", h.Device.List)
		api.Get("/devices/{id}", h.Device.Get)
		api.Get("/rooms", h.Device.Rooms)
		api.Get("/devices/{id}/markdown", h.Device.Markdown)
		api.Get("/devices/{id}/files/*", h.Device.File)
		api.Post("/chat", h.Chat.Chat)
		api.Get("/manuals/process/status/{token}", h.Manual.Status)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(secret))
			protected.Post("/manuals/process", h.Manual.Process)
			protected.Post("/manuals/process/cancel/{token}", h.Manual.Cancel)
			protected.Post("/manuals/extract", h.Manual.Extract)
			protected.Post("/manuals/analyze", h.Manual.Analyze)
			protected.Post("/manuals/commit", h.Manual.Commit)
			protected.Patch("/devices/{id}", h.Device.Update)
			protected.Delete("/devices/{id}", h.Device.Delete)
			protected.Post("/devices/{id}/replace", h.Device.Replace)
			protected.Post("/devices/rooms/rename", h.Device.RenameRoom)
			protected.Post("/upload-manual", h.Manual.UploadManual)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
