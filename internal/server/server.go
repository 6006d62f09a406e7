package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/cache"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/desertthunder/mangax/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the path patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

const shutdownTimeout = 5 * time.Second

// Server serves the matching service over HTTP and WebSocket.
type Server struct {
	svc    *tasks.Service
	hub    *Hub
	router *BasicRouter
	addr   string
	logger *log.Logger

	// batches run under base so they outlive the request that started them
	base context.Context

	cacheEvents chan cache.Event
	done        chan struct{}
	closeOnce   sync.Once
}

// New creates a Server for svc listening on cfg's address.
func New(cfg shared.ServerConfig, svc *tasks.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewNopLogger()
	}

	s := &Server{
		svc:    svc,
		hub:    NewHub(logger),
		router: NewBasicRouter(),
		addr:   cfg.Addr(),
		logger: logger,
		base:   context.Background(),

		cacheEvents: make(chan cache.Event, cacheBuffer),
		done:        make(chan struct{}),
	}
	s.routes()
	go s.forwardCache()
	svc.OnCacheUpdated(s.broadcastCache)
	return s
}

func (s *Server) routes() {
	s.router.Use(recoverer(s.logger), requestLogger(s.logger))

	s.router.Handle(http.MethodGet, "/health", http.HandlerFunc(s.health))
	s.router.Handle(http.MethodPost, "/api/batches", http.HandlerFunc(s.startBatch))
	s.router.Handle(http.MethodPost, "/api/batches/resume", http.HandlerFunc(s.resumeBatch))
	s.router.Handle(http.MethodDelete, "/api/batches/current", http.HandlerFunc(s.cancelBatch))
	s.router.Handle(http.MethodGet, "/api/results", http.HandlerFunc(s.results))
	s.router.Handle(http.MethodPost, "/api/results/{id}/{action}", http.HandlerFunc(s.reviewResult))
	s.router.Handle(http.MethodDelete, "/api/cache", http.HandlerFunc(s.clearCache))
	s.router.Handler(&streamHandler{hub: s.hub})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then cancels any running batch and shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.base = ctx
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	s.svc.Cancel()
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.svc.Wait()
	return nil
}

// Close stops cache event delivery and disconnects stream clients.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.CloseAll()
	})
}

// pump forwards batch events to stream clients until the batch ends.
func (s *Server) pump(events <-chan tasks.Event) {
	for ev := range events {
		s.hub.BroadcastJSON(ev)
		if ev.Kind == tasks.EventDone && ev.Err != nil {
			s.logger.Error("batch stopped", "err", ev.Err)
		}
	}
}
