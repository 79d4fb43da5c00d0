// Package timing measures frame time for the other units.
package timing

import (
	"time"

	"github.com/l1jgo/lifecycle/internal/core/unit"
)

// smoothing is the weight of the newest frame in the FPS moving average.
const smoothing = 0.1

// Clock samples wall time once per frame in Update. Units ordered after it
// read a stable Delta for the whole frame.
type Clock struct {
	unit.Base
	now func() time.Time

	start   time.Time
	last    time.Time
	delta   time.Duration
	fps     float64
	updates uint64
}

// SetSource replaces the wall clock, e.g. with a fake in tests.
func (c *Clock) SetSource(now func() time.Time) { c.now = now }

func (c *Clock) Initialize() error {
	if c.now == nil {
		c.now = time.Now
	}
	c.start = c.now()
	c.last = c.start
	return nil
}

func (c *Clock) Update() {
	t := c.now()
	c.delta = t.Sub(c.last)
	c.last = t
	c.updates++

	if c.delta <= 0 {
		return
	}
	inst := float64(time.Second) / float64(c.delta)
	if c.fps == 0 {
		c.fps = inst
		return
	}
	c.fps += smoothing * (inst - c.fps)
}

// Delta is the time between the last two Update calls.
func (c *Clock) Delta() time.Duration { return c.delta }

// Seconds is Delta as float seconds, the unit most movement code wants.
func (c *Clock) Seconds() float64 { return c.delta.Seconds() }

func (c *Clock) FPS() float64 { return c.fps }

func (c *Clock) Elapsed() time.Duration { return c.last.Sub(c.start) }

func (c *Clock) Updates() uint64 { return c.updates }
