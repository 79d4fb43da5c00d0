// Package builtin registers the engine's standard units between the
// BuiltinsBegin and BuiltinsEnd sentinels.
package builtin

import (
	"github.com/l1jgo/lifecycle/internal/audio"
	"github.com/l1jgo/lifecycle/internal/core/event"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/debug"
	"github.com/l1jgo/lifecycle/internal/platform"
	"github.com/l1jgo/lifecycle/internal/render"
	"github.com/l1jgo/lifecycle/internal/scripting"
	"github.com/l1jgo/lifecycle/internal/telemetry"
	"github.com/l1jgo/lifecycle/internal/timing"
)

// Register adds every built-in unit. Call it before registering user units
// so user code can order itself against the sentinels. Units already
// registered are reused.
func Register(r *unit.Registry) error {
	steps := []func(*unit.Registry) error{
		use[unit.BuiltinsBegin],
		use[timing.Clock],
		use[platform.Terminal],
		use[event.Dispatcher],
		use[scripting.Host],
		use[render.Renderer],
		use[render.HUD],
		use[audio.Player],
		use[telemetry.Recorder],
		use[debug.Server],
		use[unit.BuiltinsEnd],
	}
	for _, step := range steps {
		if err := step(r); err != nil {
			return err
		}
	}
	return nil
}

func use[T any, P interface {
	*T
	unit.Unit
}](r *unit.Registry) error {
	_, err := unit.Use[T, P](r)
	return err
}
