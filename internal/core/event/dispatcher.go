package event

import (
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"go.uber.org/zap"
)

// Dispatcher owns the frame's event Bus. Its PollEvents swaps the buffers and
// delivers everything emitted since the previous frame, so units that emit
// during PollEvents and are ordered before the Dispatcher are heard in the
// same frame.
//
// A delivered QuitRequested makes the Dispatcher's Loop return false.
type Dispatcher struct {
	unit.Base
	bus *Bus
	log *zap.Logger

	delivered  uint64
	quitSource string
}

func (d *Dispatcher) Setup(r *unit.Registry) error {
	d.bus = NewBus()
	d.log = r.Logger().Named("event")
	unit.Provide(r, d.bus)
	Subscribe(d.bus, func(q QuitRequested) {
		if d.quitSource != "" {
			return
		}
		d.quitSource = q.Source
		d.log.Info("quit requested", zap.String("source", q.Source))
	})
	return nil
}

func (d *Dispatcher) Loop() bool { return d.quitSource == "" }

// QuitSource names who asked to quit, empty while running.
func (d *Dispatcher) QuitSource() string { return d.quitSource }

func (d *Dispatcher) Bus() *Bus { return d.bus }

// Delivered is the total number of events dispatched so far.
func (d *Dispatcher) Delivered() uint64 { return d.delivered }

func (d *Dispatcher) PollEvents() {
	d.bus.SwapBuffers()
	if n := d.bus.DispatchAll(); n > 0 {
		d.delivered += uint64(n)
		d.log.Debug("events dispatched", zap.Int("count", n))
	}
}
