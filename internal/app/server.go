package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Excerpta/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Excerpta/internal/api/middlewares"
	"github.com/markdave123-py/Excerpta/internal/config"
	"github.com/markdave123-py/Excerpta/internal/services"
)

// Handlers groups the services the HTTP routes are served from.
type Handlers struct {
	Documents *services.DocumentService
	Contexts  *services.ContextService
	Viewers   *services.ViewerService
	Chat      *services.ChatService
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, h Handlers) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// NewRouter returns the API router.
func NewRouter(cfg *config.Config, h Handlers) http.Handler {
	docHandler := handlers.NewDocumentHandler(h.Documents)
	ctxHandler := handlers.NewContextHandler(h.Contexts)
	chatHandler := handlers.NewChatHandler(h.Chat)
	viewHandler := handlers.NewViewerHandler(h.Viewers, cfg.CORSOrigins)

	chatLimiter := appMiddleware.NewUserRateLimiter(cfg.ChatRatePerMinute, cfg.ChatRateBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

		// The websocket outlives any request timeout.
		api.Get("/viewers/{id}/ws", viewHandler.Socket)

		api.Group(func(protected chi.Router) {
			protected.Use(middleware.Timeout(60 * time.Second))

			protected.Get("/agents", chatHandler.Agents)
			protected.With(chatLimiter.Middleware).Post("/chat", chatHandler.Send)

			protected.Get("/documents", docHandler.GetDocuments)
			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Get("/documents/{id}", docHandler.GetDocument)
			protected.Get("/documents/{id}/pages/{page}/text", docHandler.GetPageText)

			protected.Get("/context", ctxHandler.List)
			protected.Post("/context", ctxHandler.Add)
			protected.Delete("/context", ctxHandler.Clear)
			protected.Delete("/context/{index}", ctxHandler.Remove)

			protected.Route("/viewers", func(v chi.Router) {
				v.Post("/", viewHandler.Open)
				v.Get("/{id}", viewHandler.Get)
				v.Delete("/{id}", viewHandler.Close)
				v.Put("/{id}/mode", viewHandler.SetMode)
				v.Put("/{id}/page", viewHandler.SetPage)
				v.Put("/{id}/zoom", viewHandler.Zoom)
				v.Post("/{id}/pointer/down", viewHandler.PointerDown)
				v.Post("/{id}/pointer/move", viewHandler.PointerMove)
				v.Post("/{id}/pointer/up", viewHandler.PointerUp)
				v.Post("/{id}/selection/cancel", viewHandler.CancelSelection)
				v.Post("/{id}/selection/commit", viewHandler.CommitSelection)
			})
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
