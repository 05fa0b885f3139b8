// Package server exposes the read API used by monitoring dashboards:
// conversation listings, trace documents, metrics snapshots, and performance
// summaries, plus the prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/conduit/internal/store"
)

// Server serves the read API over plain HTTP. No auth or rate limiting;
// this surface is for an internal dashboard.
type Server struct {
	store    *store.TraceStore
	logger   *slog.Logger
	registry *prometheus.Registry

	httpServer *http.Server
	listener   net.Listener
}

// Options configures a Server.
type Options struct {
	Store    *store.TraceStore
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		store:    opts.Store,
		logger:   opts.Logger,
		registry: opts.Registry,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/traces/{id}", s.handleTrace)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/performance/{id}", s.handlePerformance)
	return mux
}

// Start listens on host:port and serves until Stop.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("read api listening", "addr", addr)
	return nil
}

// Stop shuts the server down, waiting up to 5s for in-flight requests.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sessionID := r.URL.Query().Get("session_id")

	conversations, err := s.store.ListConversations(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if conversations == nil {
		conversations = []*store.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	tr, err := s.store.LoadTrace(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("load trace failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "load failed")
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "no trace for conversation "+conversationID)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}
	m, err := s.store.GetMetrics(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("get metrics failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "no metrics for conversation "+conversationID)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	summary, err := s.store.GetPerformanceSummary(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("performance summary failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "no metrics for conversation "+conversationID)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
