package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"loki-watch/internal/trigger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// Server exposes the watcher over HTTP: a health endpoint, a status endpoint
// with the last fired cycle, and a websocket live tail of new entries.
type Server struct {
	addr    string
	started time.Time

	mu          sync.RWMutex
	conns       map[*websocket.Conn]bool
	lastResult  *trigger.CycleResult
	lastFiredAt time.Time
	cyclesFired int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer creates the embedded HTTP server listening on addr.
func NewServer(addr string) *Server {
	return &Server{
		addr:    addr,
		started: time.Now(),
		conns:   make(map[*websocket.Conn]bool),
	}
}

// Notify implements trigger.Notifier: it records the cycle for /status and
// broadcasts the fired entries to all connected tail clients.
func (s *Server) Notify(ctx context.Context, result *trigger.CycleResult) error {
	s.mu.Lock()
	s.lastResult = result
	s.lastFiredAt = time.Now()
	s.cyclesFired++
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.WriteJSON(result); err != nil {
			s.dropConn(c)
		}
	}
	return nil
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/tail", s.handleTail).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         s.addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	log.Printf("HTTP server listening on %s", s.addr)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.closeConns()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		return err
	}
	log.Printf("HTTP server shutdown complete")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"server":  "loki-watch",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := map[string]any{
		"uptime":       time.Since(s.started).String(),
		"cycles_fired": s.cyclesFired,
		"tail_clients": len(s.conns),
	}
	if s.lastResult != nil {
		status["last_fired_at"] = s.lastFiredAt.Format(time.RFC3339)
		status["last_result"] = s.lastResult
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	// Reader loop: we never expect client messages, but reading drains
	// control frames and detects disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropConn(conn)
				return
			}
		}
	}()
}

func (s *Server) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = make(map[*websocket.Conn]bool)
	s.mu.Unlock()
}
