package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Hook names a script may define in the table it returns.
const (
	HookInitialize = "initialize"
	HookUpdate     = "update"
	HookDraw       = "draw"
	HookLoop       = "loop"
	HookTerminate  = "terminate"
)

var hookNames = []string{HookInitialize, HookUpdate, HookDraw, HookLoop, HookTerminate}

// Engine wraps a single gopher-lua VM. Single-goroutine access only (frame loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua VM with the standard libraries and the given
// functions installed as the global "engine" table.
func NewEngine(api map[string]lua.LGFunction, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("engine", vm.SetFuncs(vm.NewTable(), api))

	return &Engine{vm: vm, log: log}
}

// Script is one loaded file and the hooks its returned table defines.
type Script struct {
	Name  string
	Path  string
	hooks map[string]*lua.LFunction
}

// Has reports whether the script defines hook.
func (s *Script) Has(hook string) bool { return s.hooks[hook] != nil }

// Load runs the file at path. The chunk must return a table; its function
// fields named like the hooks become the script's hooks.
func (e *Engine) Load(name, path string) (*Script, error) {
	base := e.vm.GetTop()
	defer e.vm.SetTop(base)
	if err := e.vm.DoFile(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if e.vm.GetTop() == base {
		return nil, fmt.Errorf("load %s: script returned nothing, want a hook table", path)
	}
	t, ok := e.vm.Get(base + 1).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("load %s: script returned %s, want a hook table", path, e.vm.Get(base+1).Type())
	}

	s := &Script{Name: name, Path: path, hooks: make(map[string]*lua.LFunction)}
	for _, h := range hookNames {
		switch v := t.RawGetString(h).(type) {
		case *lua.LFunction:
			s.hooks[h] = v
		case *lua.LNilType:
		default:
			return nil, fmt.Errorf("load %s: %s is a %s, want a function", path, h, v.Type())
		}
	}
	e.log.Debug("loaded lua script", zap.String("script", name), zap.String("file", path))
	return s, nil
}

// Call runs hook on s with args and returns its first result, or LNil when
// the script does not define the hook.
func (e *Engine) Call(s *Script, hook string, args ...lua.LValue) (lua.LValue, error) {
	fn := s.hooks[hook]
	if fn == nil {
		return lua.LNil, nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, fmt.Errorf("%s.%s: %w", s.Name, hook, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return result, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
