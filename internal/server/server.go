// Package server exposes the device WebSocket endpoint over HTTP and feeds
// accepted connections to the session manager.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/devicelink/internal/config"
	"github.com/codefionn/devicelink/internal/logger"
	"github.com/codefionn/devicelink/internal/manager"
	"github.com/codefionn/devicelink/internal/transport"
)

// Server is the HTTP listener devices connect through
type Server struct {
	addr       string
	manager    *manager.Manager
	router     *httprouter.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a server routing the configured path to the manager
func New(cfg *config.Config, m *manager.Manager) *Server {
	s := &Server{
		addr:    fmt.Sprintf(":%d", cfg.Listen.Port),
		manager: m,
		router:  httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Devices are not browsers; origin checks do not apply.
				return true
			},
		},
	}

	s.router.GET(cfg.Listen.Path, s.handleConnect)
	if cfg.Listen.Path != "/health" {
		s.router.GET("/health", s.handleHealth)
	}

	return s
}

// Handler returns the HTTP handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts listening in the background
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Listening on %s", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the listener down and closes every live session
func (s *Server) Stop() error {
	logger.Info("Stopping server...")

	s.manager.Shutdown()

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// handleConnect upgrades the request and hands the transport to the manager
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade WebSocket: %v", err)
		return
	}

	t := transport.WebSocket(conn)
	peer := manager.PeerInfo{
		RemoteAddr:   conn.RemoteAddr().String(),
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
	}

	go func() {
		if _, err := s.manager.HandleTransport(context.Background(), t, peer); err != nil {
			// Already logged and terminated by the manager.
			return
		}
	}()
}

// handleHealth reports liveness and the current session count
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"connections": s.manager.Len(),
	})
}
