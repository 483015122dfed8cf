// Package server exposes engine status over a local HTTP endpoint: a JSON
// status document, Prometheus metrics and a live WebSocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"wifistate-go/internal/config"
	"wifistate-go/internal/events"
)

// StatusFunc returns the document served at /status.
type StatusFunc func() interface{}

// Server is the local status server.
type Server struct {
	logger  *zap.Logger
	addr    string
	status  StatusFunc
	metrics http.Handler
	ws      *WebSocketManager

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
	shutdown   bool
}

// New creates a server listening on addr once started. metrics may be nil.
func New(addr string, bus *events.Bus, status StatusFunc, metrics http.Handler, logger *zap.Logger) *Server {
	logger = logger.Named("server")
	return &Server{
		logger:  logger,
		addr:    addr,
		status:  status,
		metrics: metrics,
		ws:      NewWebSocketManager(bus, logger),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.ws.HandleWebSocket)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.shutdown {
		return errors.New("status server already shut down")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: config.StatusReadHeaderTimeout,
		MaxHeaderBytes:    1 << 20,
	}
	s.running = true

	s.logger.Info("Status server listening",
		zap.String("address", ln.Addr().String()),
		zap.Strings("endpoints", []string{"/status", "/metrics", "/ws"}))

	httpServer := s.httpServer
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server error", zap.Error(err))
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ActiveStreams returns the number of connected WebSocket clients.
func (s *Server) ActiveStreams() int {
	return s.ws.GetActiveConnections()
}

// Shutdown stops the server gracefully. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	httpServer := s.httpServer
	s.mu.Unlock()

	s.ws.Stop()
	if httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down status server")
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Status server forced shutdown", zap.Error(err))
		httpServer.Close()
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var doc interface{}
	if s.status != nil {
		doc = s.status()
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		s.logger.Warn("Failed to encode status", zap.Error(err))
	}
}
