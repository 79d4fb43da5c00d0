package unit

import (
	"reflect"

	"github.com/l1jgo/lifecycle/internal/core/graph"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry owns exactly one instance per unit type plus the ordering graph
// over them. It is single-goroutine: all mutation happens before Freeze.
type Registry struct {
	root   *zap.Logger
	log    *zap.Logger
	strict bool

	byType    map[reflect.Type]Unit
	units     []Unit // arena, index == node id in graph
	graph     *graph.Graph
	resources map[reflect.Type]any

	frozen    bool
	pending   []error
	freezeErr error
}

type Option func(*Registry)

// WithStrictRegistration makes a second Register call for the same type fail
// with ErrAlreadyRegistered instead of returning the existing instance.
func WithStrictRegistration() Option {
	return func(r *Registry) { r.strict = true }
}

func NewRegistry(log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		root:      log,
		log:       log.Named("registry"),
		byType:    make(map[reflect.Type]Unit),
		units:     make([]Unit, 0, 16),
		graph:     graph.New(0),
		resources: make(map[reflect.Type]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Logger is the logger the registry was built with; units name their own.
func (r *Registry) Logger() *zap.Logger { return r.root }
func (r *Registry) Strict() bool        { return r.strict }
func (r *Registry) Frozen() bool        { return r.frozen }
func (r *Registry) Len() int            { return len(r.units) }

// Graph exposes the ordering graph. Node i is Units()[i].
func (r *Registry) Graph() *graph.Graph { return r.graph }

// Units returns registered units in registration order.
func (r *Registry) Units() []Unit {
	return append([]Unit(nil), r.units...)
}

// Register constructs T on first use and adds it to the registry.
//
// Under the default policy a repeated call returns the existing instance;
// with WithStrictRegistration it fails with ErrAlreadyRegistered. Any call
// after Freeze fails with ErrFrozen.
func Register[T any, P interface {
	*T
	Unit
}](r *Registry) (P, error) {
	return register[T, P](r, callerLocation(2))
}

// MustRegister is Register that panics on error.
func MustRegister[T any, P interface {
	*T
	Unit
}](r *Registry) P {
	u, err := register[T, P](r, callerLocation(2))
	if err != nil {
		panic(err)
	}
	return u
}

func register[T any, P interface {
	*T
	Unit
}](r *Registry, loc string) (P, error) {
	t := reflect.TypeFor[T]()

	if r.frozen {
		name := typeName(t)
		if u, ok := r.byType[t]; ok {
			name = u.Name()
		}
		return nil, &Error{Op: "register", Unit: name, Location: loc, Err: ErrFrozen}
	}

	if existing, ok := r.byType[t]; ok {
		if r.strict {
			return nil, &Error{Op: "register", Unit: existing.Name(), Location: loc, Err: ErrAlreadyRegistered}
		}
		return existing.(P), nil
	}

	u := P(new(T))
	id := r.graph.AddNode()
	u.base().bind(r, id, u, typeName(t))
	r.units = append(r.units, u)
	r.byType[t] = u

	r.log.Debug("unit registered",
		zap.String("unit", u.Name()),
		zap.Int("id", id),
		zap.String("at", loc))

	if s, ok := any(u).(Setuper); ok {
		if err := s.Setup(r); err != nil {
			return u, &Error{Op: "setup", Unit: u.Name(), Location: loc, Err: err}
		}
	}
	return u, nil
}

// Use returns the registered instance of T, registering it first when
// needed. Unlike Register it never fails under strict registration, so
// composed units can depend on a shared unit no matter who registered it.
func Use[T any, P interface {
	*T
	Unit
}](r *Registry) (P, error) {
	if u, ok := r.byType[reflect.TypeFor[T]()]; ok {
		return u.(P), nil
	}
	return register[T, P](r, callerLocation(2))
}

// Get returns the registered instance of T. The same pointer is returned on
// every call.
func Get[T any, P interface {
	*T
	Unit
}](r *Registry) (P, error) {
	t := reflect.TypeFor[T]()
	if u, ok := r.byType[t]; ok {
		return u.(P), nil
	}
	return nil, &Error{Op: "get", Unit: typeName(t), Location: callerLocation(2), Err: ErrNotRegistered}
}

// MustGet is Get that panics when T was never registered.
func MustGet[T any, P interface {
	*T
	Unit
}](r *Registry) P {
	t := reflect.TypeFor[T]()
	if u, ok := r.byType[t]; ok {
		return u.(P)
	}
	panic(&Error{Op: "get", Unit: typeName(t), Location: callerLocation(2), Err: ErrNotRegistered})
}

// Provide stores a non-unit collaborator (config, factories, the scheduler)
// keyed by its static type T.
func Provide[T any](r *Registry, v T) {
	r.resources[reflect.TypeFor[T]()] = v
}

func Resource[T any](r *Registry) (T, bool) {
	v, ok := r.resources[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

func MustResource[T any](r *Registry) T {
	v, ok := Resource[T](r)
	if !ok {
		panic(&Error{Op: "resource", Unit: typeName(reflect.TypeFor[T]()), Location: callerLocation(2), Err: ErrNoResource})
	}
	return v
}

// addEdge records from->to. Edges touching a unit owned by another registry
// (or by none) are kept as pending errors and reported by Freeze.
func (r *Registry) addEdge(op string, from, to *Base, other Unit, loc string) {
	self := from
	if op == "after" {
		self = to
	}
	if r.frozen {
		panic(&Error{Op: op, Unit: self.displayName(), Target: nameOf(other), Location: loc, Err: ErrFrozen})
	}
	if from.reg != r || to.reg != r {
		r.pending = append(r.pending, &Error{
			Op:       op,
			Unit:     self.displayName(),
			Target:   nameOf(other),
			Location: loc,
			Err:      ErrUnresolved,
		})
		return
	}
	r.graph.AddEdge(from.id, to.id)
}

func nameOf(u Unit) string {
	if u.Registered() {
		return u.Name()
	}
	return typeName(reflect.TypeOf(u))
}

// Freeze closes registration. It anchors units between the built-in sentinels
// and returns every unresolved dependency recorded so far. Calling it again
// returns the same result.
func (r *Registry) Freeze() error {
	if r.frozen {
		return r.freezeErr
	}
	r.frozen = true
	r.anchorSentinels()
	r.freezeErr = multierr.Combine(r.pending...)
	r.pending = nil

	r.log.Debug("registry frozen", zap.Int("units", len(r.units)))
	return r.freezeErr
}

func (r *Registry) anchorSentinels() {
	begin, hasBegin := r.byType[reflect.TypeFor[BuiltinsBegin]()]
	end, hasEnd := r.byType[reflect.TypeFor[BuiltinsEnd]()]
	bi, ei := -1, -1
	if hasBegin {
		bi = begin.base().id
	}
	if hasEnd {
		ei = end.base().id
	}
	if hasBegin && hasEnd {
		r.graph.AddEdge(bi, ei)
	}

	// Edges into End never change End's descendants, so this cannot
	// introduce a cycle.
	if hasEnd {
		after := r.graph.Descendants(ei)
		for i := range r.units {
			if i == ei || i == bi || after[i] {
				continue
			}
			r.graph.AddEdge(i, ei)
		}
	}
	if hasBegin {
		before := r.graph.Ancestors(bi)
		for i := range r.units {
			if i == bi || i == ei || before[i] {
				continue
			}
			r.graph.AddEdge(bi, i)
		}
	}
}
