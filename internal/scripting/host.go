// Package scripting runs Lua scripts as part of the frame lifecycle.
package scripting

import (
	"fmt"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/event"
	"github.com/l1jgo/lifecycle/internal/core/system"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/data"
	"github.com/l1jgo/lifecycle/internal/render"
	"github.com/l1jgo/lifecycle/internal/timing"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Host loads the scripts listed in the manifest and forwards lifecycle hooks
// to them in manifest order (terminate in reverse). A script whose update or
// draw hook fails is switched off for the rest of the run.
//
// engine.quit() emits a QuitRequested event. Events are delivered in the next
// frame's PollEvents, after that frame's Loop check, so one more frame runs
// before the program stops. A script that must stop within the current frame
// returns false from its loop hook instead.
type Host struct {
	unit.Base
	cfg config.ScriptingConfig
	log *zap.Logger
	bus *event.Bus

	engine   *Engine
	scripts  []*Script
	started  int // scripts[:started] ran initialize successfully
	failed   map[string]bool
	clock    *timing.Clock
	renderer *render.Renderer
	sched    *system.Scheduler
	style    tcell.Style
}

func (h *Host) Setup(r *unit.Registry) error {
	d, err := unit.Use[event.Dispatcher](r)
	if err != nil {
		return err
	}
	h.bus = d.Bus()
	h.log = r.Logger().Named("scripting")
	h.cfg = config.Default().Scripting
	if cfg, ok := unit.Resource[*config.Config](r); ok {
		h.cfg = cfg.Scripting
	}
	h.style = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	return nil
}

func (h *Host) Initialize() error {
	if !h.cfg.Enabled {
		h.SetEnabled(false)
		return nil
	}
	reg := h.Registry()
	h.clock, _ = unit.Get[timing.Clock](reg)
	h.renderer, _ = unit.Get[render.Renderer](reg)
	h.sched, _ = unit.Resource[*system.Scheduler](reg)
	h.failed = make(map[string]bool)

	manifest, err := data.LoadScriptManifest(h.cfg.Manifest)
	if err != nil {
		return err
	}
	h.engine = NewEngine(h.api(), h.log)

	for _, entry := range manifest.Enabled() {
		path := entry.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(h.cfg.Dir, path)
		}
		s, err := h.engine.Load(entry.Name, path)
		if err != nil {
			return err
		}
		h.scripts = append(h.scripts, s)
	}
	for _, s := range h.scripts {
		if _, err := h.engine.Call(s, HookInitialize); err != nil {
			return err
		}
		h.started++
	}
	h.log.Info("scripts loaded", zap.Int("count", len(h.scripts)))
	return nil
}

func (h *Host) Update() {
	delta := lua.LNumber(0)
	if h.clock != nil {
		delta = lua.LNumber(h.clock.Seconds())
	}
	h.each(HookUpdate, delta)
}

func (h *Host) Draw() { h.each(HookDraw) }

func (h *Host) each(hook string, args ...lua.LValue) {
	for _, s := range h.scripts {
		if h.failed[s.Name] {
			continue
		}
		if _, err := h.engine.Call(s, hook, args...); err != nil {
			h.failed[s.Name] = true
			h.log.Error("script disabled after error", zap.String("script", s.Name), zap.Error(err))
		}
	}
}

// Loop returns false as soon as one script's loop hook returns false.
func (h *Host) Loop() bool {
	for _, s := range h.scripts {
		if h.failed[s.Name] || !s.Has(HookLoop) {
			continue
		}
		v, err := h.engine.Call(s, HookLoop)
		if err != nil {
			h.failed[s.Name] = true
			h.log.Error("script disabled after error", zap.String("script", s.Name), zap.Error(err))
			continue
		}
		if v == lua.LFalse {
			return false
		}
	}
	return true
}

func (h *Host) Terminate() error {
	if h.engine == nil {
		return nil
	}
	var errs error
	for i := h.started - 1; i >= 0; i-- {
		if _, err := h.engine.Call(h.scripts[i], HookTerminate); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	h.engine.Close()
	h.engine = nil
	h.scripts = nil
	h.started = 0
	return errs
}

// Scripts returns the names of loaded scripts that are still running.
func (h *Host) Scripts() []string {
	var out []string
	for _, s := range h.scripts {
		if !h.failed[s.Name] {
			out = append(out, s.Name)
		}
	}
	return out
}

// api is the "engine" table visible to scripts.
func (h *Host) api() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"frame": func(L *lua.LState) int {
			var n uint64
			if h.sched != nil {
				n = h.sched.Frames()
			}
			L.Push(lua.LNumber(n))
			return 1
		},
		"delta": func(L *lua.LState) int {
			var d float64
			if h.clock != nil {
				d = h.clock.Seconds()
			}
			L.Push(lua.LNumber(d))
			return 1
		},
		"log": func(L *lua.LState) int {
			h.log.Info("script", zap.String("msg", L.CheckString(1)))
			return 0
		},
		"text": func(L *lua.LState) int {
			x, y, s := L.CheckInt(1), L.CheckInt(2), L.CheckString(3)
			next := x + render.TextWidth(s)
			if h.renderer != nil {
				next = h.renderer.Text(x, y, s, h.style)
			}
			L.Push(lua.LNumber(next))
			return 1
		},
		"quit": func(L *lua.LState) int {
			event.Emit(h.bus, event.QuitRequested{Source: fmt.Sprintf("script %s", L.OptString(1, "lua"))})
			return 0
		},
	}
}
