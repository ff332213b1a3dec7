package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/streamhub/apiserver/config"
	"github.com/streamhub/apiserver/internal/db"
	"github.com/streamhub/apiserver/internal/events"
	"github.com/streamhub/apiserver/internal/handlers"
	"github.com/streamhub/apiserver/internal/media"
	"github.com/streamhub/apiserver/internal/services"
	"github.com/streamhub/apiserver/internal/store"
	"github.com/streamhub/apiserver/internal/token"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *events.Bus
}

// New constructs a Server with all dependencies wired from config.
// No package-level singletons: everything is built here and passed down.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	issuer, err := token.NewIssuer(cfg.Auth)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mediaStore, err := media.NewStore(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := mediaStore.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	bus, err := events.NewBus(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	subRepo := store.NewSubscriptionRepository(dbConn)

	userService := services.NewUserService(userRepo, subRepo, issuer, services.NewEventPublisher(bus))
	mediaService := services.NewMediaService(mediaStore)

	authHandler := handlers.NewAuthHandler(userService, mediaService, issuer)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, authHandler)
	})
	router.Route("/channels", func(r chi.Router) {
		handlers.ChannelRouter(r, authHandler)
	})
	router.Route("/subscriptions", func(r chi.Router) {
		handlers.SubscriptionRouter(r, authHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		bus:        bus,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
