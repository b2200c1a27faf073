package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"coderooms/pkg/auth"
	"coderooms/pkg/config"
	"coderooms/pkg/db"
	"coderooms/pkg/files"
	"coderooms/pkg/handlers"
	"coderooms/pkg/middleware"
	"coderooms/pkg/room"
	"coderooms/pkg/session"
	"coderooms/pkg/telemetry"
)

// Server represents the application server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	store      db.FileStore
	hub        *room.Hub
	config     *config.Config
	shutdown   []func(context.Context) error
}

// NewServer wires storage, membership, broadcasting and handlers together.
func NewServer() *Server {
	cfg := config.Load()

	var shutdown []func(context.Context) error
	if cfg.TracingEnabled {
		stop, err := telemetry.InitJaeger("coderooms", cfg.JaegerEndpoint)
		if err != nil {
			log.Printf("tracing disabled: %v", err)
		} else {
			shutdown = append(shutdown, stop)
		}
	}

	store, err := db.NewPostgresFileStore(cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	shutdown = append(shutdown, func(context.Context) error { return store.Close() })

	registry := session.NewRegistry()
	hub := room.NewHub(registry)
	autoSaver := files.NewAutoSaver(store)
	authn := auth.New(cfg.JWTSecret)

	h := handlers.NewHandlers(store, hub, autoSaver, authn)

	r := mux.NewRouter()
	r.Use(middleware.Tracing)
	r.Use(middleware.Recovery)
	r.Use(corsMiddleware)

	// WebSocket endpoint for real-time collaboration
	r.HandleFunc("/ws", h.HandleWebSocket)

	r.HandleFunc("/api/health", h.Health).Methods("GET")

	// REST surface, bearer identity required
	api := r.PathPrefix("/api/files").Subrouter()
	api.Use(authn.Middleware)
	api.HandleFunc("/create", h.CreateFile).Methods("POST")
	api.HandleFunc("/save", h.SaveFile).Methods("POST")
	api.HandleFunc("/autosave", h.AutoSaveFile).Methods("POST")
	api.HandleFunc("/language", h.ChangeLanguage).Methods("PATCH")
	api.HandleFunc("/rename", h.RenameFile).Methods("PATCH")
	api.HandleFunc("/extension", h.ChangeExtension).Methods("PATCH")
	api.HandleFunc("", h.ListFiles).Methods("GET")
	api.HandleFunc("/recent/list", h.RecentFiles).Methods("GET")
	api.HandleFunc("/{id}/open", h.OpenFile).Methods("GET")
	api.HandleFunc("/{id}/meta", h.FileMeta).Methods("GET")
	api.HandleFunc("/{id}/delete", h.DeleteFile).Methods("DELETE")
	api.HandleFunc("/{id}/restore", h.RestoreFile).Methods("PATCH")

	return &Server{
		router: r,
		httpServer: &http.Server{
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:    store,
		hub:      hub,
		config:   cfg,
		shutdown: shutdown,
	}
}

// Start runs the HTTP server until the listener fails.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.config.GetServerAddr()
	}
	log.Printf("Starting collaborative code server on %s", addr)

	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// Close drains in-flight requests, then releases the server's resources in
// reverse acquisition order.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	firstErr := s.httpServer.Shutdown(ctx)
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		if err := s.shutdown[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// corsMiddleware answers preflight requests and stamps the CORS headers
// before method-restricted routes get a chance to 405 them.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		w.Header().Set("Access-Control-Max-Age", "600")
		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Access-Control-Request-Headers")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
