// Package statusserver exposes a live view of an in-progress optimization
// run over HTTP and WebSocket, mirroring the teacher's WebServer dashboard
// push (health.go, server.go). It is optional ambient infrastructure: a
// nil *Server is always safe to call, and the core evolutionary loop never
// depends on it.
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/site-optimizer/evolve"
	"github.com/devskill-org/site-optimizer/optimizer"
)

// Server pushes generation-by-generation progress and the final result to
// connected dashboard clients.
type Server struct {
	httpServer *http.Server
	port       int
	startTime  time.Time
	upgrader   websocket.Upgrader
	clients    sync.Map
	broadcast  chan []byte
	done       chan struct{}

	mu     sync.RWMutex
	latest StatusUpdate
}

// StatusUpdate is the JSON payload pushed to every connected client.
type StatusUpdate struct {
	Type       string          `json:"type"`
	Timestamp  string          `json:"timestamp"`
	UptimeSec  float64         `json:"uptime_seconds"`
	Running    bool            `json:"running"`
	Generation *evolve.GenStat `json:"generation,omitempty"`
	Result     *RunSummary     `json:"result,omitempty"`
}

// RunSummary is the subset of optimizer.Result pushed once a run completes.
type RunSummary struct {
	Fitness                float64 `json:"fitness"`
	BalanceEUR             float64 `json:"balance_eur"`
	LossesWh               float64 `json:"losses_wh"`
	SoCShortfall           float64 `json:"soc_shortfall"`
	EVFinalSoCPercent      float64 `json:"ev_final_soc_percent"`
	EVOptimizationDisabled bool    `json:"ev_optimization_disabled"`
}

// New builds a Server listening on port. Port <= 0 disables the server
// entirely, matching the teacher's NewWebServer(port<=0) guard.
func New(port int) *Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		latest:    StatusUpdate{Type: "status_update", Running: false},
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/ws", s.wsHandler)

	return s
}

// Start begins serving HTTP and broadcasting queued updates.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	go s.handleBroadcasts()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[STATUSSERVER] server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down, closing all client connections.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	close(s.done)

	s.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return s.httpServer.Shutdown(ctx)
}

// PublishGeneration broadcasts one generation's minimum-fitness statistic
// while a run is in progress.
func (s *Server) PublishGeneration(stat evolve.GenStat) {
	if s == nil {
		return
	}
	update := s.setLatest(func(u *StatusUpdate) {
		u.Running = true
		u.Generation = &stat
		u.Result = nil
	})
	s.enqueue(update)
}

// PublishResult broadcasts a completed run's summary.
func (s *Server) PublishResult(result optimizer.Result) {
	if s == nil {
		return
	}
	summary := &RunSummary{
		Fitness:                result.Fitness,
		BalanceEUR:             result.Diagnostics.MeanBalanceEUR,
		LossesWh:               result.Diagnostics.MeanLosses,
		SoCShortfall:           result.Diagnostics.MeanSoCShortfall,
		EVFinalSoCPercent:      result.EVFinal.SoCPercent,
		EVOptimizationDisabled: result.EVOptimizationDisabled,
	}
	update := s.setLatest(func(u *StatusUpdate) {
		u.Running = false
		u.Generation = nil
		u.Result = summary
	})
	s.enqueue(update)
}

// CurrentStatus returns the most recently published status update.
func (s *Server) CurrentStatus() StatusUpdate {
	if s == nil {
		return StatusUpdate{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Server) setLatest(mutate func(*StatusUpdate)) StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest.Timestamp = time.Now().UTC().Format(time.RFC3339)
	s.latest.UptimeSec = time.Since(s.startTime).Seconds()
	mutate(&s.latest)
	return s.latest
}

func (s *Server) enqueue(update StatusUpdate) {
	message, err := json.Marshal(update)
	if err != nil {
		fmt.Printf("[STATUSSERVER] failed to marshal status update: %v\n", err)
		return
	}
	select {
	case s.broadcast <- message:
	default:
		// Drop the update rather than block the optimization loop on a
		// slow or disconnected client set.
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	current := s.latest
	s.mu.RUnlock()
	current.Timestamp = time.Now().UTC().Format(time.RFC3339)
	current.UptimeSec = time.Since(s.startTime).Seconds()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(current); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("[STATUSSERVER] websocket upgrade error: %v\n", err)
		return
	}
	s.clients.Store(conn, true)

	s.mu.RLock()
	current := s.latest
	s.mu.RUnlock()
	if err := conn.WriteJSON(current); err != nil {
		fmt.Printf("[STATUSSERVER] failed to send initial status: %v\n", err)
	}

	defer func() {
		s.clients.Delete(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}
