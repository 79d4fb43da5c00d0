package render

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/l1jgo/lifecycle/internal/core/system"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/timing"
)

// HUD prints frame statistics in the top-left corner.
type HUD struct {
	unit.Base
	r     *Renderer
	clock *timing.Clock
	sched *system.Scheduler

	style tcell.Style
	lines []string
}

func (h *HUD) Setup(reg *unit.Registry) error {
	r, err := unit.Use[Renderer](reg)
	if err != nil {
		return err
	}
	h.After(r)
	h.r = r
	h.style = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	return nil
}

func (h *HUD) Initialize() error {
	reg := h.Registry()
	h.clock, _ = unit.Get[timing.Clock](reg)
	h.sched, _ = unit.Resource[*system.Scheduler](reg)
	return nil
}

func (h *HUD) Update() {
	h.lines = h.lines[:0]
	if h.sched != nil {
		h.lines = append(h.lines, fmt.Sprintf("frame %s", humanize.Comma(int64(h.sched.Frames()))))
	}
	if h.clock != nil {
		h.lines = append(h.lines, fmt.Sprintf("fps %.1f  up %s", h.clock.FPS(), h.clock.Elapsed().Truncate(time.Second)))
	}
	if h.sched != nil && h.sched.Digest() != "" {
		h.lines = append(h.lines, fmt.Sprintf("schedule %s (%d units)", h.sched.Digest()[:12], len(h.sched.Schedule())))
	}
}

func (h *HUD) Draw() {
	for i, line := range h.lines {
		h.r.Text(0, i, line, h.style)
	}
}

// Lines returns what the last Update prepared.
func (h *HUD) Lines() []string { return h.lines }
