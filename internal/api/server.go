package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

// DriverFactory builds the session for one respondent connection.
type DriverFactory func(interview.Entry) *interview.Driver

type Server struct {
	router    *chi.Mux
	port      int
	newDriver DriverFactory
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	render    *Renderer
	active    atomic.Int64
	httpSrv   *http.Server
}

func NewServer(port int, newDriver DriverFactory, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		newDriver: newDriver,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		render: NewRenderer(),
	}

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/", s.page)
	router.Get("/ws", s.chat)
	router.Get("/health", s.health)
	router.Get("/api/v1/interviewer/status", s.status)

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections. Websockets already upgraded are
// not tracked by net/http and run until their interview ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"agent":           "interviewer",
		"status":          "ok",
		"active_sessions": s.active.Load(),
	})
}
