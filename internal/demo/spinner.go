// Package demo holds a user-side unit that runs after every built-in.
package demo

import (
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/render"
	"github.com/l1jgo/lifecycle/internal/timing"
)

// radiansPerSecond is the spin speed around the Y axis.
const radiansPerSecond = 1.2

var cube = [8]mgl32.Vec3{
	{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
	{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
}

// Spinner rotates a unit cube by the frame delta and plots its corners.
type Spinner struct {
	unit.Base
	clock    *timing.Clock
	renderer *render.Renderer

	angle  float32
	points [8][2]int
	style  tcell.Style
}

func (s *Spinner) Setup(r *unit.Registry) error {
	end, err := unit.Use[unit.BuiltinsEnd](r)
	if err != nil {
		return err
	}
	s.After(end)
	s.style = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	return nil
}

func (s *Spinner) Initialize() error {
	reg := s.Registry()
	s.clock, _ = unit.Get[timing.Clock](reg)
	s.renderer, _ = unit.Get[render.Renderer](reg)
	return nil
}

func (s *Spinner) Update() {
	if s.clock == nil {
		return
	}
	s.angle += float32(s.clock.Seconds() * radiansPerSecond)
	s.angle = float32(math.Mod(float64(s.angle), 2*math.Pi))
}

// Angle is the current rotation in radians, within [0, 2π).
func (s *Spinner) Angle() float32 { return s.angle }

func (s *Spinner) Draw() {
	if s.renderer == nil {
		return
	}
	w, h := s.renderer.Size()
	if w == 0 || h == 0 {
		return
	}
	s.points = Project(s.angle, w, h)
	for _, p := range s.points {
		s.renderer.Text(p[0], p[1], "●", s.style)
	}
}

// Project returns the terminal cell of each cube corner rotated by angle,
// for a w×h cell viewport. Cells are twice as tall as wide, so x is stretched.
func Project(angle float32, w, h int) [8][2]int {
	model := mgl32.HomogRotate3DY(angle).Mul4(mgl32.HomogRotate3DX(angle / 2))
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 8}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	aspect := float32(w) / float32(2*h)
	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 100)
	mvp := proj.Mul4(view).Mul4(model)

	var out [8][2]int
	for i, v := range cube {
		clip := mvp.Mul4x1(v.Vec4(1))
		ndc := clip.Vec3().Mul(1 / clip.W())
		out[i][0] = int((ndc.X() + 1) / 2 * float32(w-1))
		out[i][1] = int((1 - ndc.Y()) / 2 * float32(h-1))
	}
	return out
}
