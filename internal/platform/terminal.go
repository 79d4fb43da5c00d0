// Package platform is the window and input backend: a tcell terminal screen
// whose input is pumped on its own goroutine and drained once per frame.
package platform

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/event"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"go.uber.org/zap"
)

// ScreenFactory creates the screen on Initialize. Provide one to the registry
// to replace tcell.NewScreen, e.g. with a simulation screen.
type ScreenFactory func() (tcell.Screen, error)

// Terminal owns the tcell screen. It is ordered before the event Dispatcher so
// input polled in a frame is dispatched in that same frame.
type Terminal struct {
	unit.Base
	cfg       config.TerminalConfig
	log       *zap.Logger
	bus       *event.Bus
	newScreen ScreenFactory

	screen tcell.Screen
	events chan tcell.Event
	quit   chan struct{}
	done   chan struct{}

	width, height int
}

func (t *Terminal) Setup(r *unit.Registry) error {
	d, err := unit.Use[event.Dispatcher](r)
	if err != nil {
		return err
	}
	t.Before(d)
	t.bus = d.Bus()
	t.log = r.Logger().Named("terminal")

	t.cfg = config.Default().Terminal
	if cfg, ok := unit.Resource[*config.Config](r); ok {
		t.cfg = cfg.Terminal
	}
	t.newScreen = tcell.NewScreen
	if f, ok := unit.Resource[ScreenFactory](r); ok {
		t.newScreen = f
	}
	if !t.cfg.Enabled {
		t.SetEnabled(false)
	}
	return nil
}

func (t *Terminal) Initialize() error {
	if !t.cfg.Enabled {
		t.log.Info("terminal disabled, running headless")
		return nil
	}
	screen, err := t.newScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	screen.HideCursor()
	screen.Clear()

	t.screen = screen
	t.width, t.height = screen.Size()
	queue := t.cfg.EventQueue
	if queue <= 0 {
		queue = 100
	}
	t.events = make(chan tcell.Event, queue)
	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	go t.pump()

	t.log.Info("terminal ready", zap.Int("width", t.width), zap.Int("height", t.height))
	return nil
}

// pump forwards screen events until Fini makes PollEvent return nil.
func (t *Terminal) pump() {
	defer close(t.done)
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case t.events <- ev:
		case <-t.quit:
			return
		}
	}
}

// PollEvents drains queued input without blocking.
func (t *Terminal) PollEvents() {
	if t.events == nil {
		return
	}
	for {
		select {
		case ev := <-t.events:
			t.handle(ev)
		default:
			return
		}
	}
}

func (t *Terminal) handle(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		key := event.KeyPressed{Name: ev.Name()}
		if ev.Key() == tcell.KeyRune {
			key.Rune = ev.Rune()
		}
		event.Emit(t.bus, key)
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			event.Emit(t.bus, event.QuitRequested{Source: "terminal " + ev.Name()})
		}
	case *tcell.EventResize:
		t.width, t.height = ev.Size()
		if t.screen != nil {
			t.screen.Sync()
		}
		event.Emit(t.bus, event.Resized{Width: t.width, Height: t.height})
	}
}

// Screen is nil until Initialize, and stays nil when the terminal is disabled.
func (t *Terminal) Screen() tcell.Screen { return t.screen }

func (t *Terminal) Size() (int, int) { return t.width, t.height }

func (t *Terminal) Terminate() error {
	if t.screen == nil {
		return nil
	}
	close(t.quit)
	t.screen.Fini()
	<-t.done
	t.screen = nil
	t.log.Debug("terminal closed")
	return nil
}
