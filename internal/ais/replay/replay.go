// Package replay paces a stream of AIS points by event-time delta, scaled
// by a speedup factor, and dispatches each point to a detection pipeline.
// It supports cooperative cancellation, per-point failure isolation, and
// periodic broadcast of progress ticks.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisais/detector/internal/ais/broadcast"
	"github.com/aegisais/detector/internal/ais/ingest"
	"github.com/aegisais/detector/internal/ais/model"
	"github.com/aegisais/detector/internal/ais/pipeline"
	"github.com/aegisais/detector/internal/aisconfig"
	"github.com/aegisais/detector/internal/monitoring"
	"github.com/aegisais/detector/internal/timeutil"
)

// DefaultSpeedup is used when a session does not specify one.
const DefaultSpeedup = 100.0

// MinSpeedup floors the effective speedup so pacing can never divide by
// (near) zero.
const MinSpeedup = 0.1

// pointSource abstracts over a materialized or streamed point feed so the
// pacing loop does not care which mode loaded the file.
type pointSource interface {
	// Next returns one point per call and io.EOF once exhausted. The final
	// point may come together with io.EOF, or io.EOF may come alone (with a
	// zero point) on the call after the final point was returned with nil.
	Next() (model.AisPoint, error)
	Close() error
}

// materializedSource replays an already-sorted in-memory slice one point
// at a time.
type materializedSource struct {
	points []model.AisPoint
	pos    int
}

func (m *materializedSource) Next() (model.AisPoint, error) {
	if m.pos >= len(m.points) {
		return model.AisPoint{}, io.EOF
	}
	p := m.points[m.pos]
	m.pos++
	if m.pos >= len(m.points) {
		return p, io.EOF
	}
	return p, nil
}

func (m *materializedSource) Close() error { return nil }

// streamingSource adapts ingest.StreamReader's chunked interface down to
// one point at a time, so the pacing loop always works point-by-point
// regardless of load mode.
type streamingSource struct {
	sr      *ingest.StreamReader
	buf     []model.AisPoint
	pos     int
	drained bool
}

func (s *streamingSource) Next() (model.AisPoint, error) {
	for s.pos >= len(s.buf) {
		if s.drained {
			return model.AisPoint{}, io.EOF
		}
		chunk, err := s.sr.Next()
		if err == io.EOF {
			s.drained = true
		} else if err != nil {
			return model.AisPoint{}, err
		}
		s.buf = chunk
		s.pos = 0
		if len(s.buf) == 0 && s.drained {
			return model.AisPoint{}, io.EOF
		}
	}
	p := s.buf[s.pos]
	s.pos++
	if s.pos >= len(s.buf) && s.drained {
		return p, io.EOF
	}
	return p, nil
}

func (s *streamingSource) Close() error { return s.sr.Close() }

// State reports the live status of a Session, safe for concurrent reads
// while a replay is in progress.
type State struct {
	Running       bool  `json:"running"`
	Processed     int64 `json:"processed"`
	Errors        int64 `json:"errors"`
	LastTimestamp int64 `json:"last_timestamp"` // unix seconds, 0 if no point processed yet
	StopRequested bool  `json:"stop_requested"`
}

// Session drives a single replay of one file through a Pipeline, pacing
// dispatch by event-time delta and broadcasting progress.
type Session struct {
	id       string
	path     string
	speedup  float64
	pipeline *pipeline.Pipeline
	hub      *broadcast.Hub
	clock    timeutil.Clock
	cfg      *aisconfig.Config

	mu            sync.Mutex
	running       bool
	stopRequested bool
	processed     int64
	errCount      int64
	lastTimestamp int64
}

// NewSession constructs a replay session for path, to be driven by Run.
// clock may be a MockClock in tests; production callers pass
// timeutil.RealClock{}.
func NewSession(id, path string, speedup float64, pl *pipeline.Pipeline, hub *broadcast.Hub, cfg *aisconfig.Config, clock timeutil.Clock) *Session {
	if speedup < MinSpeedup {
		speedup = MinSpeedup
	}
	return &Session{
		id:       id,
		path:     path,
		speedup:  speedup,
		pipeline: pl,
		hub:      hub,
		cfg:      cfg,
		clock:    clock,
	}
}

// Stop requests cooperative cancellation. Run notices at the top of its
// next loop iteration, after at most one in-flight pacing sleep.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
}

// State returns a snapshot of the session's current progress.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Running:       s.running,
		Processed:     s.processed,
		Errors:        s.errCount,
		LastTimestamp: s.lastTimestamp,
		StopRequested: s.stopRequested,
	}
}

// Run opens the source file, selecting streaming vs. materialized load
// based on file size against the configured threshold, then paces
// dispatch of each point to the pipeline by scaled event-time delta until
// the stream is exhausted, the context is cancelled, or Stop is called.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	src, err := s.openSource()
	if err != nil {
		s.broadcastError(fmt.Errorf("open replay source: %w", err))
		return err
	}
	defer src.Close()

	var prevEventNanos int64
	var prevWall time.Time
	var havePrev bool

	batch := s.cfg.GetDefaultBatchSize()
	sinceBatch := 0

	for {
		select {
		case <-ctx.Done():
			s.broadcastTick()
			s.finish(ctx.Err())
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		stop := s.stopRequested
		s.mu.Unlock()
		if stop {
			s.broadcastTick()
			s.finish(nil)
			return nil
		}

		p, readErr := src.Next()
		if readErr != nil && readErr != io.EOF {
			s.broadcastError(fmt.Errorf("read replay source: %w", readErr))
			s.finish(readErr)
			return readErr
		}
		gotPoint := readErr == nil || (readErr == io.EOF && p.MMSI != "")

		if gotPoint {
			if havePrev {
				deltaNanos := p.Timestamp.UnixNano() - prevEventNanos
				if deltaNanos > 0 {
					paced := time.Duration(float64(deltaNanos) / s.speedup)
					elapsed := s.clock.Now().Sub(prevWall)
					if paced > elapsed {
						s.clock.Sleep(paced - elapsed)
					}
				}
			}
			prevEventNanos = p.Timestamp.UnixNano()
			prevWall = s.clock.Now()
			havePrev = true

			s.dispatch(ctx, p)
			sinceBatch++

			s.mu.Lock()
			s.lastTimestamp = p.Timestamp.Unix()
			s.mu.Unlock()

			if sinceBatch >= batch {
				s.broadcastTick()
				sinceBatch = 0
			}
		}

		if readErr == io.EOF {
			s.broadcastTick()
			s.finish(nil)
			return nil
		}
	}
}

// dispatch runs one point through the pipeline with per-point isolation:
// a failure here is logged and counted, never fatal to the session.
func (s *Session) dispatch(ctx context.Context, p model.AisPoint) {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()

	alerts, err := s.pipeline.ProcessPoint(ctx, p)
	if err != nil {
		s.mu.Lock()
		s.errCount++
		s.mu.Unlock()
		monitoring.Logf("replay %s: point for MMSI %s failed: %v", s.id, p.MMSI, err)
		return
	}
	for _, a := range alerts {
		s.hub.Broadcast(broadcast.Message{Kind: broadcast.KindAlert, Data: a})
	}
}

func (s *Session) broadcastTick() {
	s.hub.Broadcast(broadcast.Message{Kind: broadcast.KindTick, Data: s.State()})
}

func (s *Session) broadcastError(err error) {
	s.hub.Broadcast(broadcast.Message{Kind: broadcast.KindError, Data: err.Error()})
}

func (s *Session) finish(err error) {
	if err != nil && err != context.Canceled {
		monitoring.Logf("replay %s: terminated: %v", s.id, err)
	}
}

func (s *Session) openSource() (pointSource, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}

	if ingest.ShouldStream(info.Size(), s.cfg.GetStreamingThresholdMB()) {
		sr, err := ingest.NewStreamReader(s.path, s.cfg.GetChunkSize())
		if err != nil {
			return nil, err
		}
		return &streamingSource{sr: sr}, nil
	}

	points, err := ingest.Load(s.path)
	if err != nil {
		return nil, err
	}
	return &materializedSource{points: points}, nil
}

// Registry tracks active replay sessions by ID so a control surface can
// start, stop, and query status without holding a reference itself.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start launches a new session in a background goroutine and registers it
// under a freshly allocated ID.
func (r *Registry) Start(parent context.Context, path string, speedup float64, pl *pipeline.Pipeline, hub *broadcast.Hub, cfg *aisconfig.Config, clock timeutil.Clock) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	session := NewSession(id, path, speedup, pl, hub, cfg, clock)

	r.mu.Lock()
	r.sessions[id] = session
	r.cancels[id] = cancel
	r.mu.Unlock()

	go func() {
		_ = session.Run(ctx)
		cancel()
	}()

	return id
}

// Stop requests cancellation of the named session, both the cooperative
// Stop() flag and the context cancel func, covering a sleeping or
// actively-dispatching session either way.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	cancel := r.cancels[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such replay session: %s", id)
	}
	session.Stop()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Status returns the current state of the named session.
func (r *Registry) Status(id string) (State, error) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return State{}, fmt.Errorf("no such replay session: %s", id)
	}
	return session.State(), nil
}
