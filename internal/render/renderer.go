// Package render draws text cells onto the terminal screen.
package render

import (
	"github.com/gdamore/tcell/v2"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/platform"
	"golang.org/x/text/width"
)

// Renderer brackets every frame's Draw phase: BeginDraw clears the back
// buffer and EndDraw presents it. Without a screen every call is a no-op.
type Renderer struct {
	unit.Base
	term   *platform.Terminal
	screen tcell.Screen
	shown  uint64
}

func (r *Renderer) Setup(reg *unit.Registry) error {
	term, err := unit.Use[platform.Terminal](reg)
	if err != nil {
		return err
	}
	r.After(term)
	r.term = term
	return nil
}

func (r *Renderer) Initialize() error {
	r.screen = r.term.Screen()
	return nil
}

func (r *Renderer) BeginDraw() {
	if r.screen != nil {
		r.screen.Clear()
	}
}

func (r *Renderer) EndDraw() {
	if r.screen != nil {
		r.screen.Show()
		r.shown++
	}
}

// Shown counts presented frames.
func (r *Renderer) Shown() uint64 { return r.shown }

func (r *Renderer) Size() (int, int) {
	if r.screen == nil {
		return 0, 0
	}
	return r.screen.Size()
}

// Text writes s starting at column x of row y and returns the column after
// the last cell written. Wide runes take two columns.
func (r *Renderer) Text(x, y int, s string, style tcell.Style) int {
	for _, c := range s {
		w := RuneWidth(c)
		if w == 0 {
			continue
		}
		if r.screen != nil {
			r.screen.SetContent(x, y, c, nil, style)
		}
		x += w
	}
	return x
}

func (r *Renderer) Terminate() error {
	r.screen = nil
	return nil
}

// RuneWidth is the number of terminal columns c occupies.
func RuneWidth(c rune) int {
	if c < 0x20 || c == 0x7f {
		return 0
	}
	switch width.LookupRune(c).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

// TextWidth is the display width of s.
func TextWidth(s string) int {
	n := 0
	for _, c := range s {
		n += RuneWidth(c)
	}
	return n
}
