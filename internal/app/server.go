package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/verifai-labs/verifai/internal/api/handlers"
	appMiddleware "github.com/verifai-labs/verifai/internal/api/middlewares"
	"github.com/verifai-labs/verifai/internal/config"
	"github.com/verifai-labs/verifai/internal/core"
	"github.com/verifai-labs/verifai/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, verificationSvc *services.VerificationService, chatSvc *services.ChatService, patternSvc *services.PatternService) *Server {
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	verificationHandler := handlers.NewVerificationHandler(verificationSvc)
	chatHandler := handlers.NewChatHandler(chatSvc)
	patternHandler := handlers.NewPatternHandler(patternSvc)
	settingsHandler := handlers.NewSettingsHandler(db)
	dashboardHandler := handlers.NewDashboardHandler(db)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Verification runs make several model calls in sequence; leave room
	// for the slowest path.
	r.Use(middleware.Timeout(3 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Get("/health", handlers.Health)
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

			protected.Post("/verifications", verificationHandler.Create)
			protected.Get("/verifications", verificationHandler.List)
			protected.Get("/verifications/{id}", verificationHandler.Get)
			protected.Patch("/verifications/{id}", verificationHandler.Decide)
			protected.Get("/verifications/{id}/audit", verificationHandler.AuditTrail)

			protected.Get("/verifications/{id}/chat", chatHandler.History)
			protected.Post("/verifications/{id}/chat", chatHandler.Send)

			protected.Get("/patterns", patternHandler.List)
			protected.Put("/patterns/{id}", patternHandler.Upsert)

			protected.Get("/settings", settingsHandler.Get)
			protected.Put("/settings", settingsHandler.Replace)

			protected.Get("/dashboard", dashboardHandler.Summary)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
