package system

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/l1jgo/lifecycle/internal/core/unit"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// ErrState is returned (or panicked with) when a scheduler method is called
// out of lifecycle order.
var ErrState = errors.New("invalid scheduler state")

// Scheduler drives every registered unit through its lifecycle in one fixed
// dependency order. It is not safe for concurrent use; only Frames and the
// schedule accessors may be read from other goroutines once Initialize has run.
type Scheduler struct {
	reg *unit.Registry
	log *zap.Logger

	state      State
	planErr    error
	initCalled bool
	order      []unit.Unit
	names      []string
	digest     string
	frames     atomic.Uint64
	stoppedBy  string
}

func NewScheduler(reg *unit.Registry, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		reg: reg,
		log: log.Named("scheduler"),
	}
}

func (s *Scheduler) State() State { return s.state }

// Frames returns the number of completed EndDraw sweeps.
func (s *Scheduler) Frames() uint64 { return s.frames.Load() }

// Schedule returns unit names in execution order. Empty before Plan.
func (s *Scheduler) Schedule() []string { return append([]string(nil), s.names...) }

// Units returns the units in execution order.
func (s *Scheduler) Units() []unit.Unit { return append([]unit.Unit(nil), s.order...) }

// Digest is a hex blake2b-256 over the ordered unit names.
func (s *Scheduler) Digest() string { return s.digest }

// StoppedBy names the unit whose Loop returned false, if any.
func (s *Scheduler) StoppedBy() string { return s.stoppedBy }

// Plan freezes registration, rejects cyclic or unresolved graphs and computes
// the schedule. No unit hook runs. Repeated calls return the first result.
func (s *Scheduler) Plan() error {
	if s.order != nil || s.planErr != nil {
		return s.planErr
	}
	if s.state != StateRegistering {
		return fmt.Errorf("%w: plan called while %s", ErrState, s.state)
	}

	if err := s.reg.Freeze(); err != nil {
		s.planErr = fmt.Errorf("schedule: %w", err)
		s.log.Error("registry rejected", zap.Error(err))
		return s.planErr
	}

	g := s.reg.Graph()
	units := s.reg.Units()

	if cycle := g.FindCycle(); cycle != nil {
		cycle.Names = make([]string, len(cycle.Path))
		for i, n := range cycle.Path {
			cycle.Names[i] = units[n].Name()
		}
		s.planErr = fmt.Errorf("schedule: %w", cycle)
		s.log.Error("dependency cycle", zap.Strings("cycle", cycle.Names))
		return s.planErr
	}

	idx, err := g.Sort()
	if err != nil {
		s.planErr = fmt.Errorf("schedule: %w", err)
		return s.planErr
	}

	s.order = make([]unit.Unit, len(idx))
	s.names = make([]string, len(idx))
	for i, n := range idx {
		s.order[i] = units[n]
		s.names[i] = units[n].Name()
	}
	sum := blake2b.Sum256([]byte(strings.Join(s.names, "\n")))
	s.digest = hex.EncodeToString(sum[:])
	s.state = StateSorted

	s.log.Info("schedule computed",
		zap.Int("units", len(s.order)),
		zap.Strings("order", s.names),
		zap.String("digest", s.digest[:12]))
	for i, u := range s.order {
		s.log.Debug("schedule entry",
			zap.Int("index", i),
			zap.String("unit", u.Name()),
			zap.Bool("enabled", u.Enabled()))
	}
	return nil
}

// Initialize plans the schedule and calls Initialize on every unit in order,
// enabled or not. A unit error stops the sweep and is returned; Terminate must
// still be called afterwards.
func (s *Scheduler) Initialize() error {
	if s.initCalled {
		return fmt.Errorf("%w: initialize called twice", ErrState)
	}
	if err := s.Plan(); err != nil {
		return err
	}
	s.initCalled = true

	for _, u := range s.order {
		in, ok := u.(unit.Initializer)
		if !ok {
			continue
		}
		if err := in.Initialize(); err != nil {
			s.log.Error("unit initialize failed", zap.String("unit", u.Name()), zap.Error(err))
			return fmt.Errorf("initialize %s: %w", u.Name(), err)
		}
	}

	s.state = StateRunning
	s.log.Info("units initialized", zap.Int("units", len(s.order)))
	return nil
}

// each calls hook on every unit implementing H in schedule order. Disabled
// units are skipped unless all is set.
func each[H any](s *Scheduler, phase Phase, all bool, hook func(H)) {
	s.mustRun(phase)
	for _, u := range s.order {
		if !all && !u.Enabled() {
			continue
		}
		if h, ok := u.(H); ok {
			hook(h)
		}
	}
}

func (s *Scheduler) mustRun(phase Phase) {
	if s.state != StateRunning {
		panic(fmt.Errorf("%w: %s called while %s", ErrState, phase, s.state))
	}
}

// PollEvents runs on every unit regardless of its enabled flag so external
// events are always drained.
func (s *Scheduler) PollEvents() {
	each(s, PhasePollEvents, true, unit.EventPoller.PollEvents)
}

func (s *Scheduler) Update() {
	each(s, PhaseUpdate, false, unit.Updater.Update)
}

func (s *Scheduler) BeginDraw() {
	each(s, PhaseBeginDraw, false, unit.DrawBeginner.BeginDraw)
}

func (s *Scheduler) Draw() {
	each(s, PhaseDraw, false, unit.Drawer.Draw)
}

func (s *Scheduler) EndDraw() {
	each(s, PhaseEndDraw, false, unit.DrawEnder.EndDraw)
	s.frames.Add(1)
}

// Loop asks every enabled unit whether the program should continue. The first
// unit returning false ends the sweep.
func (s *Scheduler) Loop() bool {
	s.mustRun(PhaseLoop)
	for _, u := range s.order {
		if !u.Enabled() {
			continue
		}
		l, ok := u.(unit.Looper)
		if !ok || l.Loop() {
			continue
		}
		if s.stoppedBy == "" {
			s.stoppedBy = u.Name()
			s.log.Info("loop stopped", zap.String("unit", u.Name()), zap.Uint64("frame", s.Frames()))
		}
		return false
	}
	return true
}

// RunPhase dispatches a single per-frame phase by value.
func (s *Scheduler) RunPhase(p Phase) bool {
	switch p {
	case PhasePollEvents:
		s.PollEvents()
	case PhaseUpdate:
		s.Update()
	case PhaseBeginDraw:
		s.BeginDraw()
	case PhaseDraw:
		s.Draw()
	case PhaseEndDraw:
		s.EndDraw()
	case PhaseLoop:
		return s.Loop()
	default:
		panic(fmt.Errorf("%w: %s is not a frame phase", ErrState, p))
	}
	return true
}

// RunFrame checks Loop and, if every unit agrees, runs one full frame.
func (s *Scheduler) RunFrame() bool {
	if !s.Loop() {
		return false
	}
	s.PollEvents()
	s.Update()
	s.BeginDraw()
	s.Draw()
	s.EndDraw()
	return true
}

// Terminate calls Terminate on every scheduled unit in reverse order, enabled
// or not. Errors and panics are collected; every unit gets its call. Safe to
// call after a failed Initialize and more than once.
func (s *Scheduler) Terminate() error {
	if s.state == StateTerminated {
		return nil
	}

	var errs error
	for i := len(s.order) - 1; i >= 0; i-- {
		u := s.order[i]
		t, ok := u.(unit.Terminator)
		if !ok {
			continue
		}
		if err := terminate(t); err != nil {
			s.log.Error("unit terminate failed", zap.String("unit", u.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("terminate %s: %w", u.Name(), err))
		}
	}

	s.state = StateTerminated
	s.log.Info("units terminated",
		zap.Int("units", len(s.order)),
		zap.Uint64("frames", s.Frames()),
		zap.Bool("clean", errs == nil))
	return errs
}

func terminate(t unit.Terminator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Terminate()
}
