package system

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/l1jgo/lifecycle/internal/core/graph"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type call struct {
	unit  string
	phase Phase
}

type trace struct{ calls []call }

func (tr *trace) add(name string, p Phase) { tr.calls = append(tr.calls, call{name, p}) }

// units returns, in call order, the units that ran phase p.
func (tr *trace) units(p Phase) []string {
	var out []string
	for _, c := range tr.calls {
		if c.phase == p {
			out = append(out, c.unit)
		}
	}
	return out
}

func (tr *trace) reset() { tr.calls = nil }

// probe records every hook call. K only gives each probe a distinct type and name.
type probe[K any] struct {
	unit.Base
	tr *trace

	stop      bool
	initErr   error
	termErr   error
	termPanic bool
}

type (
	A struct{}
	B struct{}
	C struct{}
	X struct{}
	Y struct{}
	Z struct{}
)

func (p *probe[K]) Name() string { return reflect.TypeFor[K]().Name() }

func (p *probe[K]) Setup(r *unit.Registry) error {
	p.tr = unit.MustResource[*trace](r)
	return nil
}

func (p *probe[K]) Initialize() error {
	p.tr.add(p.Name(), PhaseInitialize)
	return p.initErr
}

func (p *probe[K]) PollEvents() { p.tr.add(p.Name(), PhasePollEvents) }
func (p *probe[K]) Update()     { p.tr.add(p.Name(), PhaseUpdate) }
func (p *probe[K]) BeginDraw()  { p.tr.add(p.Name(), PhaseBeginDraw) }
func (p *probe[K]) Draw()       { p.tr.add(p.Name(), PhaseDraw) }
func (p *probe[K]) EndDraw()    { p.tr.add(p.Name(), PhaseEndDraw) }

func (p *probe[K]) Loop() bool {
	p.tr.add(p.Name(), PhaseLoop)
	return !p.stop
}

func (p *probe[K]) Terminate() error {
	p.tr.add(p.Name(), PhaseTerminate)
	if p.termPanic {
		panic("terminate exploded")
	}
	return p.termErr
}

func newRegistry(t *testing.T, log *zap.Logger) (*unit.Registry, *trace) {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	reg := unit.NewRegistry(log)
	tr := &trace{}
	unit.Provide(reg, tr)
	return reg, tr
}

func assertOrder(t *testing.T, what string, got, want []string) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
}

func TestEndToEndScenario(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg, tr := newRegistry(t, zap.New(core))

	a := unit.MustRegister[probe[A]](reg)
	b := unit.MustRegister[probe[B]](reg)
	c := unit.MustRegister[probe[C]](reg)
	b.After(a)
	c.After(b)

	s := NewScheduler(reg, zap.New(core))
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	assertOrder(t, "schedule", s.Schedule(), []string{"A", "B", "C"})
	assertOrder(t, "initialize", tr.units(PhaseInitialize), []string{"A", "B", "C"})

	entries := logs.FilterMessage("schedule computed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one schedule log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["order"]; !reflect.DeepEqual(got, []interface{}{"A", "B", "C"}) {
		t.Fatalf("logged order = %v", got)
	}

	b.SetEnabled(false)
	tr.reset()
	if !s.RunFrame() {
		t.Fatal("frame should continue")
	}
	assertOrder(t, "poll_events", tr.units(PhasePollEvents), []string{"A", "B", "C"})
	assertOrder(t, "update", tr.units(PhaseUpdate), []string{"A", "C"})
	assertOrder(t, "draw", tr.units(PhaseDraw), []string{"A", "C"})
	assertOrder(t, "loop", tr.units(PhaseLoop), []string{"A", "C"})

	tr.reset()
	if err := s.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	assertOrder(t, "terminate", tr.units(PhaseTerminate), []string{"C", "B", "A"})
	if s.State() != StateTerminated {
		t.Fatalf("state = %s", s.State())
	}
}

func TestCycleStopsBeforeInitialize(t *testing.T) {
	reg, tr := newRegistry(t, nil)
	a := unit.MustRegister[probe[A]](reg)
	b := unit.MustRegister[probe[B]](reg)
	unit.MustRegister[probe[C]](reg)
	a.Before(b)
	b.Before(a)

	s := NewScheduler(reg, zaptest.NewLogger(t))
	err := s.Initialize()
	if !errors.Is(err, graph.ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	var cycle *graph.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected *graph.CycleError, got %T", err)
	}
	assertOrder(t, "cycle", cycle.Names, []string{"A", "B", "A"})
	if n := len(tr.units(PhaseInitialize)); n != 0 {
		t.Fatalf("%d units initialized despite the cycle", n)
	}
	if s.State() == StateRunning {
		t.Fatal("scheduler reached running state")
	}
	if err := s.Terminate(); err != nil {
		t.Fatalf("Terminate after failed plan: %v", err)
	}
	if n := len(tr.units(PhaseTerminate)); n != 0 {
		t.Fatalf("%d units terminated without a schedule", n)
	}
}

func TestUnresolvedDependencyStopsStartup(t *testing.T) {
	reg, tr := newRegistry(t, nil)
	a := unit.MustRegister[probe[A]](reg)
	a.After(&probe[B]{})

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Initialize(); !errors.Is(err, unit.ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
	if len(tr.calls) != 0 {
		t.Fatalf("hooks ran: %v", tr.calls)
	}
}

func TestRegistrationOrderIsStable(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	unit.MustRegister[probe[X]](reg)
	unit.MustRegister[probe[Y]](reg)
	unit.MustRegister[probe[Z]](reg)

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	assertOrder(t, "schedule", s.Schedule(), []string{"X", "Y", "Z"})
}

func TestExplicitEdgesBeatRegistrationOrder(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	x := unit.MustRegister[probe[X]](reg)
	y := unit.MustRegister[probe[Y]](reg)
	z := unit.MustRegister[probe[Z]](reg)
	x.After(z)
	y.After(z)

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	assertOrder(t, "schedule", s.Schedule(), []string{"Z", "X", "Y"})
}

func TestDiamondAndDisjointComponents(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	a := unit.MustRegister[probe[A]](reg)
	b := unit.MustRegister[probe[B]](reg)
	c := unit.MustRegister[probe[C]](reg)
	x := unit.MustRegister[probe[X]](reg)
	y := unit.MustRegister[probe[Y]](reg)
	z := unit.MustRegister[probe[Z]](reg)
	// diamond X -> {B, C} -> A, plus Z before Y
	b.After(x)
	c.After(x)
	a.After(b)
	a.After(c)
	z.Before(y)

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	pos := map[string]int{}
	for i, n := range s.Schedule() {
		pos[n] = i
	}
	for _, e := range [][2]string{{"X", "B"}, {"X", "C"}, {"B", "A"}, {"C", "A"}, {"Z", "Y"}} {
		if pos[e[0]] >= pos[e[1]] {
			t.Errorf("%s should precede %s in %v", e[0], e[1], s.Schedule())
		}
	}
	if len(pos) != 6 {
		t.Fatalf("schedule %v does not hold every unit once", s.Schedule())
	}
}

// Every registration order of End, P, Q and U must put U (after End) last,
// behind P (before End) and Q (unrelated).
func TestSentinelAnchoring(t *testing.T) {
	type (
		P struct{}
		Q struct{}
		U struct{}
	)
	kinds := []string{"End", "P", "Q", "U"}

	var permute func([]string, int, func([]string))
	permute = func(s []string, k int, f func([]string)) {
		if k == len(s) {
			f(append([]string(nil), s...))
			return
		}
		for i := k; i < len(s); i++ {
			s[k], s[i] = s[i], s[k]
			permute(s, k+1, f)
			s[k], s[i] = s[i], s[k]
		}
	}

	permute(kinds, 0, func(order []string) {
		t.Run(strings.Join(order, "-"), func(t *testing.T) {
			reg, _ := newRegistry(t, zap.NewNop())
			var (
				end *unit.BuiltinsEnd
				p   *probe[P]
				u   *probe[U]
			)
			for _, k := range order {
				switch k {
				case "End":
					end = unit.MustRegister[unit.BuiltinsEnd](reg)
				case "P":
					p = unit.MustRegister[probe[P]](reg)
				case "Q":
					unit.MustRegister[probe[Q]](reg)
				case "U":
					u = unit.MustRegister[probe[U]](reg)
				}
			}
			p.Before(end)
			u.After(end)

			s := NewScheduler(reg, zap.NewNop())
			if err := s.Plan(); err != nil {
				t.Fatalf("Plan: %v", err)
			}
			pos := map[string]int{}
			for i, n := range s.Schedule() {
				pos[n] = i
			}
			last := len(order) - 1
			if pos["U"] != last {
				t.Fatalf("U should run last, schedule %v", s.Schedule())
			}
			if pos["P"] > pos["unit.BuiltinsEnd"] || pos["Q"] > pos["unit.BuiltinsEnd"] {
				t.Fatalf("P and Q should precede the end sentinel, schedule %v", s.Schedule())
			}
		})
	})
}

func TestBeginSentinelAnchoring(t *testing.T) {
	type Early struct{}

	reg, _ := newRegistry(t, nil)
	begin := unit.MustRegister[unit.BuiltinsBegin](reg)
	unit.MustRegister[probe[A]](reg)
	unit.MustRegister[probe[B]](reg)
	unit.MustRegister[unit.BuiltinsEnd](reg)
	late := unit.MustRegister[probe[C]](reg)
	early := unit.MustRegister[probe[Early]](reg)
	early.Before(begin)
	late.After(unit.MustGet[unit.BuiltinsEnd](reg))

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	assertOrder(t, "schedule", s.Schedule(), []string{
		"Early", "unit.BuiltinsBegin", "A", "B", "unit.BuiltinsEnd", "C",
	})
}

func TestTerminateIsReverseAndTotal(t *testing.T) {
	reg, tr := newRegistry(t, nil)
	unit.MustRegister[probe[A]](reg)
	b := unit.MustRegister[probe[B]](reg)
	c := unit.MustRegister[probe[C]](reg)
	b.termErr = errors.New("release failed")
	c.termPanic = true
	c.SetEnabled(false)

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	assertOrder(t, "initialize", tr.units(PhaseInitialize), []string{"A", "B", "C"})

	err := s.Terminate()
	assertOrder(t, "terminate", tr.units(PhaseTerminate), []string{"C", "B", "A"})
	if err == nil {
		t.Fatal("expected aggregated terminate error")
	}
	for _, want := range []string{"terminate B: release failed", "terminate C: panic: terminate exploded"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}

	tr.reset()
	if err := s.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
	if len(tr.calls) != 0 {
		t.Fatal("second Terminate called hooks again")
	}
}

func TestInitializeErrorLeavesScheduleTerminable(t *testing.T) {
	reg, tr := newRegistry(t, nil)
	unit.MustRegister[probe[A]](reg)
	b := unit.MustRegister[probe[B]](reg)
	unit.MustRegister[probe[C]](reg)
	b.initErr = errors.New("device missing")

	s := NewScheduler(reg, zaptest.NewLogger(t))
	err := s.Initialize()
	if err == nil || !strings.Contains(err.Error(), "initialize B: device missing") {
		t.Fatalf("unexpected error %v", err)
	}
	assertOrder(t, "initialize", tr.units(PhaseInitialize), []string{"A", "B"})
	assertOrder(t, "schedule", s.Schedule(), []string{"A", "B", "C"})

	if err := s.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	assertOrder(t, "terminate", tr.units(PhaseTerminate), []string{"C", "B", "A"})
}

func TestEnabledGate(t *testing.T) {
	reg, tr := newRegistry(t, nil)
	unit.MustRegister[probe[A]](reg)
	b := unit.MustRegister[probe[B]](reg)

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	b.SetEnabled(false)
	s.PollEvents()
	s.Update()
	b.SetEnabled(true)
	s.BeginDraw()
	s.Draw()
	s.EndDraw()

	assertOrder(t, "poll_events", tr.units(PhasePollEvents), []string{"A", "B"})
	assertOrder(t, "update", tr.units(PhaseUpdate), []string{"A"})
	assertOrder(t, "begin_draw", tr.units(PhaseBeginDraw), []string{"A", "B"})
	assertOrder(t, "draw", tr.units(PhaseDraw), []string{"A", "B"})
	assertOrder(t, "end_draw", tr.units(PhaseEndDraw), []string{"A", "B"})
	if s.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", s.Frames())
	}
}

func TestLoopShortCircuits(t *testing.T) {
	reg, tr := newRegistry(t, nil)
	unit.MustRegister[probe[A]](reg)
	b := unit.MustRegister[probe[B]](reg)
	unit.MustRegister[probe[C]](reg)
	b.stop = true

	s := NewScheduler(reg, zaptest.NewLogger(t))
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.Loop() {
		t.Fatal("Loop should report stop")
	}
	assertOrder(t, "loop", tr.units(PhaseLoop), []string{"A", "B"})
	if s.StoppedBy() != "B" {
		t.Fatalf("StoppedBy() = %q", s.StoppedBy())
	}

	// A disabled dissenter is not consulted.
	b.SetEnabled(false)
	if !s.RunPhase(PhaseLoop) {
		t.Fatal("disabled unit stopped the loop")
	}
}

func TestProtocolErrors(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	unit.MustRegister[probe[A]](reg)
	s := NewScheduler(reg, zaptest.NewLogger(t))

	func() {
		defer func() {
			err, ok := recover().(error)
			if !ok || !errors.Is(err, ErrState) {
				t.Fatalf("expected ErrState panic, got %v", err)
			}
		}()
		s.Update()
	}()

	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := s.Initialize(); !errors.Is(err, ErrState) {
		t.Fatalf("second Initialize: expected ErrState, got %v", err)
	}
	if _, err := unit.Register[probe[B]](reg); !errors.Is(err, unit.ErrFrozen) {
		t.Fatalf("register after initialize: expected ErrFrozen, got %v", err)
	}
}

func TestPlanIsIdempotentAndDigestStable(t *testing.T) {
	build := func() *Scheduler {
		reg, _ := newRegistry(t, nil)
		unit.MustRegister[probe[A]](reg)
		unit.MustRegister[probe[B]](reg)
		return NewScheduler(reg, zaptest.NewLogger(t))
	}

	s1, s2 := build(), build()
	for _, s := range []*Scheduler{s1, s2} {
		if err := s.Plan(); err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if err := s.Plan(); err != nil {
			t.Fatalf("second Plan: %v", err)
		}
		if s.State() != StateSorted {
			t.Fatalf("state = %s, want sorted", s.State())
		}
	}
	if s1.Digest() == "" || s1.Digest() != s2.Digest() {
		t.Fatalf("digests differ: %q vs %q", s1.Digest(), s2.Digest())
	}
	if err := s1.Initialize(); err != nil {
		t.Fatalf("Initialize after Plan: %v", err)
	}
}

func TestPhaseString(t *testing.T) {
	if PhasePollEvents.String() != "poll_events" || Phase(42).String() != "unknown" {
		t.Fatal("unexpected phase names")
	}
	if StateRunning.String() != "running" {
		t.Fatal("unexpected state name")
	}
}
