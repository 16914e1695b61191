package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/warrenlabs/warren/internal/health"
)

// HealthServer exposes warrend's /healthz endpoint for container
// supervisors. It answers from a store ping: the consumer is serviceable
// exactly when it can reach the store.
type HealthServer struct {
	server *http.Server
	store  health.Pinger
}

// HealthResponse is the JSON body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewHealthServer creates the health check HTTP server. It listens on all
// interfaces, which container networking requires.
func NewHealthServer(store health.Pinger, port int) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		store: store,
	}

	mux.HandleFunc("/healthz", hs.handleHealthz)
	return hs
}

// Start starts the server in a background goroutine and returns
// immediately. Server errors are logged, never fatal to the daemon.
func (hs *HealthServer) Start() {
	go func() {
		log.Printf("[DEBUG] Health server listening on %s", hs.server.Addr)
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] Health server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server, bounded by ctx.
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// handleHealthz returns 200 when the store answers a ping, 503 otherwise.
func (hs *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{Status: string(health.StatusHealthy)}
	statusCode := http.StatusOK

	if err := hs.store.Ping(ctx); err != nil {
		response.Status = string(health.StatusUnhealthy)
		response.Error = err.Error()
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[ERROR] Failed to encode health response: %v", err)
	}
}
