// Package unit defines the long-lived subsystems driven by the frame scheduler
// and the registry that owns them.
//
// A unit is any struct embedding Base. It registers once, declares ordering
// against other units with Before/After, and implements whichever lifecycle
// hooks it needs. Hooks are called by the scheduler only; user code never
// calls them directly.
package unit

import (
	"reflect"
)

// Unit is the handle every registered subsystem exposes. The unexported method
// restricts implementations to types that embed Base.
type Unit interface {
	Name() string
	Enabled() bool
	SetEnabled(enabled bool)
	Registered() bool
	Registry() *Registry

	// Before makes this unit's hooks run ahead of other's in every phase.
	Before(other Unit)
	// After makes this unit's hooks run behind other's in every phase.
	After(other Unit)

	base() *Base
}

// Lifecycle hooks. All are optional.
type (
	// Setuper runs once, immediately after the unit is constructed and
	// registered. Declare edges and register composed units here.
	Setuper interface{ Setup(r *Registry) error }

	Initializer  interface{ Initialize() error }
	EventPoller  interface{ PollEvents() }
	Updater      interface{ Update() }
	DrawBeginner interface{ BeginDraw() }
	Drawer       interface{ Draw() }
	DrawEnder    interface{ EndDraw() }

	// Looper returning false asks the host to stop the frame loop.
	Looper interface{ Loop() bool }

	// Terminator must tolerate being called on a unit whose Initialize
	// never ran or failed.
	Terminator interface{ Terminate() error }
)

// Base carries the bookkeeping shared by all units. Embed it by value.
type Base struct {
	reg      *Registry
	self     Unit
	id       int
	name     string
	disabled bool
}

func (b *Base) base() *Base { return b }

// Name defaults to the concrete type, e.g. "platform.Terminal". Units may
// shadow it with their own Name method.
func (b *Base) Name() string { return b.name }

func (b *Base) Enabled() bool           { return !b.disabled }
func (b *Base) SetEnabled(enabled bool) { b.disabled = !enabled }
func (b *Base) Registered() bool        { return b.reg != nil }
func (b *Base) Registry() *Registry     { return b.reg }

func (b *Base) Before(other Unit) {
	b.mustRegistry("before").addEdge("before", b, other.base(), other, callerLocation(2))
}

func (b *Base) After(other Unit) {
	b.mustRegistry("after").addEdge("after", other.base(), b, other, callerLocation(2))
}

func (b *Base) mustRegistry(op string) *Registry {
	if b.reg == nil {
		panic(&Error{Op: op, Unit: b.displayName(), Location: callerLocation(3), Err: ErrNotRegistered})
	}
	return b.reg
}

func (b *Base) bind(r *Registry, id int, self Unit, name string) {
	b.reg = r
	b.id = id
	b.self = self
	b.name = name
}

// displayName prefers an overriding Name method once the unit is bound.
func (b *Base) displayName() string {
	if b.self != nil {
		return b.self.Name()
	}
	if b.name != "" {
		return b.name
	}
	return "<unbound unit>"
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// BuiltinsBegin and BuiltinsEnd are no-op ordering anchors. When registered,
// every other unit is implicitly placed between them unless it declares
// otherwise, so user code can say "after every built-in" without naming the
// built-ins.
type (
	BuiltinsBegin struct{ Base }
	BuiltinsEnd   struct{ Base }
)
