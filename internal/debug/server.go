// Package debug serves a read-only HTTP view of the running schedule.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/system"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/timing"
	"go.uber.org/zap"
)

// UnitStatus is one schedule row as served by GET /schedule.
type UnitStatus struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type scheduleView struct {
	Digest string       `json:"digest"`
	Units  []UnitStatus `json:"units"`
}

type framesView struct {
	Frames    uint64  `json:"frames"`
	FPS       float64 `json:"fps"`
	ElapsedMs int64   `json:"elapsed_ms"`
}

// Server publishes a snapshot from EndDraw each frame; HTTP handlers only
// read the snapshot, never the units themselves.
type Server struct {
	unit.Base
	cfg config.DebugConfig
	log *zap.Logger

	sched *system.Scheduler
	clock *timing.Clock

	router chi.Router
	srv    *http.Server
	addr   string

	schedule atomic.Pointer[scheduleView]
	frames   atomic.Pointer[framesView]
}

func (s *Server) Setup(r *unit.Registry) error {
	s.log = r.Logger().Named("debug")
	s.cfg = config.Default().Debug
	if cfg, ok := unit.Resource[*config.Config](r); ok {
		s.cfg = cfg.Debug
	}
	s.router = s.routes()
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	r.Get("/schedule", s.handleSchedule)
	r.Get("/frames", s.handleFrames)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr is the bound listen address once Initialize has started the server.
func (s *Server) Addr() string { return s.addr }

func (s *Server) Initialize() error {
	reg := s.Registry()
	s.sched, _ = unit.Resource[*system.Scheduler](reg)
	s.clock, _ = unit.Get[timing.Clock](reg)
	s.publish()

	if !s.cfg.Enabled {
		s.SetEnabled(false)
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("debug listen %s: %w", s.cfg.Addr, err)
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("debug server stopped", zap.Error(err))
		}
	}()
	s.log.Info("debug server listening", zap.String("addr", s.addr))
	return nil
}

func (s *Server) EndDraw() { s.publish() }

// publish snapshots the schedule and frame counters for the handlers.
func (s *Server) publish() {
	if s.sched == nil {
		return
	}
	units := s.sched.Units()
	view := &scheduleView{Digest: s.sched.Digest(), Units: make([]UnitStatus, len(units))}
	for i, u := range units {
		view.Units[i] = UnitStatus{Index: i, Name: u.Name(), Enabled: u.Enabled()}
	}
	s.schedule.Store(view)

	f := &framesView{Frames: s.sched.Frames()}
	if s.clock != nil {
		f.FPS = s.clock.FPS()
		f.ElapsedMs = s.clock.Elapsed().Milliseconds()
	}
	s.frames.Store(f)
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	view := s.schedule.Load()
	if view == nil {
		http.Error(w, "schedule not computed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleFrames(w http.ResponseWriter, _ *http.Request) {
	f := s.frames.Load()
	if f == nil {
		f = &framesView{}
	}
	if s.sched != nil {
		f = &framesView{Frames: s.sched.Frames(), FPS: f.FPS, ElapsedMs: f.ElapsedMs}
	}
	writeJSON(w, f)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) Terminate() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	return err
}
