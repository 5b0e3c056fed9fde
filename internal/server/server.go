// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects the cache, session,
// remote store, engine, and handlers. Think of it as the control centre
// that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//   config + remote store + connectivity monitor → passed to Server
//   Server.New() creates: sqlite cache → session.State → engine.Engine →
//   handlers
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/qliu/flashsync/internal/auth"
	cachesqlite "github.com/qliu/flashsync/internal/cache/sqlite"
	"github.com/qliu/flashsync/internal/connectivity"
	"github.com/qliu/flashsync/internal/engine"
	"github.com/qliu/flashsync/internal/handler"
	"github.com/qliu/flashsync/internal/middleware"
	"github.com/qliu/flashsync/internal/remote"
	"github.com/qliu/flashsync/internal/session"
)

// Config holds server configuration.
// Using a struct for config (instead of individual parameters) makes it
// easy to add options without changing function signatures and to load
// everything from env vars in one place.
type Config struct {
	Port      int
	DBPath    string // path to the SQLite cache file
	JWTSecret string
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the sqlite cache connection and the connectivity
// monitor's polling goroutine. Both are released during graceful shutdown
// in Start().
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *cachesqlite.DB
	monitor *connectivity.Monitor
}

// New creates a new Server over the given remote store and monitor.
//
// The remote store and monitor are passed in rather than built here:
// main.go decides whether the backend is a real HTTP document store or the
// in-process one, and the wiring below doesn't care which.
func New(cfg Config, rs remote.Store, mon *connectivity.Monitor, logger *slog.Logger) (*Server, error) {
	db, err := cachesqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		monitor: mon,
	}

	if err := s.setupRoutes(rs); err != nil {
		db.Close() // clean up if wiring fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST   /api/auth/register                       → create an account
//	POST   /api/auth/login                          → issue JWT cookie
//	POST   /api/auth/logout                         → clear cookie, purge cache  [auth]
//	GET    /api/session                             → session + connectivity flags [auth]
//	PUT    /api/session/offline-mode                → flip the offline toggle   [auth]
//	GET    /api/groups                              → caller's groups           [auth]
//	POST   /api/groups                              → create group              [auth]
//	GET    /api/groups/{groupID}                    → group details + sets      [auth]
//	GET    /api/groups/{groupID}/exists             → existence check           [auth]
//	GET    /api/groups/{groupID}/members            → member list               [auth]
//	POST   /api/groups/{groupID}/members            → add member                [auth]
//	DELETE /api/groups/{groupID}/members/{memberID} → remove member             [auth]
//	GET    /api/groups/{groupID}/sets               → flashcard sets (?mode=)   [auth]
//	POST   /api/groups/{groupID}/sets               → share a set               [auth]
//	GET    /api/groups/{groupID}/flashcards         → group's loose cards       [auth]
//	POST   /api/groups/{groupID}/flashcards         → add a loose card          [auth]
//	GET    /api/flashcards                          → cached personal cards     [auth]
//	POST   /api/flashcards                          → save personal cards       [auth]
//	POST   /api/flashcards/sync                     → import from remote        [auth]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
func (s *Server) setupRoutes(rs remote.Store) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	state, err := session.New(context.Background(), s.db, s.logger)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return err
	}

	// DEPENDENCY CHAIN:
	//   s.db (sqlite kv) → session.State and auth.Accounts
	//   engine.Engine receives the remote store, session, and monitor
	//   handlers receive the engine
	//
	// The handlers never touch the cache directly; the engine never
	// touches HTTP.
	eng := engine.New(rs, state, s.monitor, s.logger)
	accounts := auth.NewAccounts(s.db, auth.NewPasswordService())

	authHandler := handler.NewAuthHandler(accounts, tokens, state, s.logger)
	sessionHandler := handler.NewSessionHandler(state, s.monitor, s.logger)
	groupHandler := handler.NewGroupHandler(eng, s.logger)
	flashcardHandler := handler.NewFlashcardHandler(eng, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Post("/auth/logout", authHandler.HandleLogout)

			r.Get("/session", sessionHandler.HandleStatus)
			r.Put("/session/offline-mode", sessionHandler.HandleSetOfflineMode)

			r.Get("/groups", groupHandler.HandleList)
			r.Post("/groups", groupHandler.HandleCreate)
			r.Get("/groups/{groupID}", groupHandler.HandleDetails)
			r.Get("/groups/{groupID}/exists", groupHandler.HandleValidate)
			r.Get("/groups/{groupID}/members", groupHandler.HandleMembers)
			r.Post("/groups/{groupID}/members", groupHandler.HandleAddMember)
			r.Delete("/groups/{groupID}/members/{memberID}", groupHandler.HandleRemoveMember)
			r.Get("/groups/{groupID}/sets", flashcardHandler.HandleListSets)
			r.Post("/groups/{groupID}/sets", flashcardHandler.HandleShareSet)
			r.Get("/groups/{groupID}/flashcards", groupHandler.HandleGroupFlashcards)
			r.Post("/groups/{groupID}/flashcards", groupHandler.HandleAddGroupFlashcard)

			r.Get("/flashcards", flashcardHandler.HandleListPersonal)
			r.Post("/flashcards", flashcardHandler.HandleSavePersonal)
			r.Post("/flashcards/sync", flashcardHandler.HandleSync)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the connectivity monitor's polling goroutine
// 4. Close the cache database (flushes WAL, releases the file lock)
//
// Skipping step 4 could leave the cache file in an inconsistent state.
// The defers ensure it happens even if something panics.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.monitor.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("cache", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
