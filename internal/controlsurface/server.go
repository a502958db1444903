// Package controlsurface exposes the minimal HTTP control API for starting,
// stopping, and observing a replay session: POST /replay/start, POST
// /replay/stop, GET /replay/status, and GET /stream for Server-Sent Events
// of alert/tick/error broadcasts.
package controlsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/aegisais/detector/internal/ais/broadcast"
	"github.com/aegisais/detector/internal/ais/cooldown"
	"github.com/aegisais/detector/internal/ais/pipeline"
	"github.com/aegisais/detector/internal/ais/replay"
	"github.com/aegisais/detector/internal/aisconfig"
	"github.com/aegisais/detector/internal/aiserr"
	"github.com/aegisais/detector/internal/httputil"
	"github.com/aegisais/detector/internal/monitoring"
	"github.com/aegisais/detector/internal/security"
	"github.com/aegisais/detector/internal/timeutil"
)

// Store is the persistence backend a session's pipeline writes through.
type Store = pipeline.Store

// Server wires the replay registry, broadcast hub, and config together
// behind a small JSON/SSE API.
type Server struct {
	cfg       *aisconfig.Config
	hub       *broadcast.Hub
	cooldowns *cooldown.Store
	store     Store
	registry  *replay.Registry
	clock     timeutil.Clock

	mu           sync.Mutex
	activeID     string
	activeCancel context.CancelFunc
}

// New constructs a Server. store is the persistence backend shared across
// replay sessions; clock is real in production and mockable in tests.
func New(cfg *aisconfig.Config, store Store, clock timeutil.Clock) *Server {
	return &Server{
		cfg:       cfg,
		hub:       broadcast.NewHub(),
		cooldowns: cooldown.NewStore(time.Duration(cfg.GetAlertCooldownSec() * float64(time.Second))),
		store:     store,
		registry:  replay.NewRegistry(),
		clock:     clock,
	}
}

// Cooldowns returns the process-wide cooldown store backing every replay
// session's pipeline, for the periodic cleanup task to purge.
func (s *Server) Cooldowns() *cooldown.Store {
	return s.cooldowns
}

// Mux builds the HTTP handler tree for this server.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/replay/start", s.handleStart)
	mux.HandleFunc("/replay/stop", s.handleStop)
	mux.HandleFunc("/replay/status", s.handleStatus)
	mux.HandleFunc("/stream", s.handleStream)
	return mux
}

type startRequest struct {
	Path         string  `json:"path"`
	Speedup      float64 `json:"speedup"`
	UseStreaming *bool   `json:"use_streaming,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type stopResponse struct {
	Stopping bool `json:"stopping"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, aiserr.Validation("invalid request body", map[string]any{"error": err.Error()}))
		return
	}
	if req.Path == "" {
		writeError(w, aiserr.Validation("path is required", nil))
		return
	}
	if err := security.ValidatePathWithinAllowedDirs(req.Path, []string{s.cfg.GetDataDir()}); err != nil {
		writeError(w, aiserr.Validation(fmt.Sprintf("path rejected: %v", err), nil))
		return
	}

	speedup := req.Speedup
	if speedup <= 0 {
		speedup = replay.DefaultSpeedup
	}

	// Per-session overrides of the load-mode decision and batch-tick size,
	// applied on top of the server's base config without mutating it.
	sessionCfg := *s.cfg
	if req.BatchSize > 0 {
		batchSize := req.BatchSize
		sessionCfg.DefaultBatchSize = &batchSize
	}
	if req.UseStreaming != nil {
		threshold := math.MaxFloat64
		if *req.UseStreaming {
			threshold = 0
		}
		sessionCfg.StreamingThresholdMB = &threshold
	}

	pl := pipeline.New(&sessionCfg, s.cooldowns, s.store)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != "" {
		writeError(w, aiserr.Conflict("a replay session is already running", map[string]any{"session_id": s.activeID}))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := s.registry.Start(ctx, req.Path, speedup, pl, s.hub, &sessionCfg, s.clock)
	s.activeID = id
	s.activeCancel = cancel

	// The registry's own goroutine cancels ctx once the session stops
	// running, for any reason (stream exhausted, error, or a cooperative
	// Stop). Clear activeID at that point so the next start is no longer
	// rejected as concurrent.
	go s.clearOnDone(id, ctx)

	writeJSON(w, http.StatusAccepted, startResponse{SessionID: id})
}

// clearOnDone releases the active-session slot once ctx is cancelled,
// provided id is still the active session (a later Start may already have
// taken its place).
func (s *Server) clearOnDone(id string, ctx context.Context) {
	<-ctx.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == id {
		s.activeID = ""
		s.activeCancel = nil
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.mu.Lock()
	id := s.activeID
	cancel := s.activeCancel
	s.mu.Unlock()

	if id == "" {
		writeError(w, aiserr.NotFound("no replay session is running", nil))
		return
	}
	if err := s.registry.Stop(id); err != nil {
		writeError(w, aiserr.New(err.Error(), http.StatusInternalServerError, nil))
		return
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	if s.activeID == id {
		s.activeID = ""
		s.activeCancel = nil
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, stopResponse{Stopping: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()

	if id == "" {
		writeJSON(w, http.StatusOK, replay.State{})
		return
	}
	state, err := s.registry.Status(id)
	if err != nil {
		writeError(w, aiserr.NotFound(err.Error(), nil))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleStream serves Server-Sent Events of broadcast.Hub messages: alerts,
// progress ticks, and fatal session errors.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	fmt.Fprint(w, ": ping\n\n")
	flusher.Flush()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				monitoring.Logf("controlsurface: failed to marshal broadcast message: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, err *aiserr.Error) {
	httputil.WriteJSON(w, err.Status, map[string]any{"error": err.Message, "details": err.Details})
}
