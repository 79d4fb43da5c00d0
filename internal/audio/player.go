// Package audio plays short feedback tones through the system speaker.
package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/event"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"go.uber.org/zap"
)

// Output is the sound device. The default wraps the beep speaker package.
type Output interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
	Close()
}

type speakerOutput struct{}

func (speakerOutput) Init(rate beep.SampleRate, n int) error { return speaker.Init(rate, n) }
func (speakerOutput) Play(s ...beep.Streamer)                { speaker.Play(s...) }
func (speakerOutput) Lock()                                  { speaker.Lock() }
func (speakerOutput) Unlock()                                { speaker.Unlock() }
func (speakerOutput) Close()                                 { speaker.Close() }

// Player clicks on every key press. When the device cannot be opened it logs
// a warning and disables itself instead of failing startup.
type Player struct {
	unit.Base
	cfg config.AudioConfig
	log *zap.Logger
	out Output

	mu     sync.Mutex
	rate   beep.SampleRate
	mixer  *beep.Mixer
	ready  bool
	clicks uint64
}

func (p *Player) Setup(r *unit.Registry) error {
	d, err := unit.Use[event.Dispatcher](r)
	if err != nil {
		return err
	}
	p.log = r.Logger().Named("audio")
	p.cfg = config.Default().Audio
	if cfg, ok := unit.Resource[*config.Config](r); ok {
		p.cfg = cfg.Audio
	}
	p.out = speakerOutput{}
	if out, ok := unit.Resource[Output](r); ok {
		p.out = out
	}
	event.Subscribe(d.Bus(), func(event.KeyPressed) { p.Click() })
	return nil
}

func (p *Player) Initialize() error {
	if !p.cfg.Enabled {
		p.SetEnabled(false)
		return nil
	}
	p.rate = beep.SampleRate(p.cfg.SampleRate)
	if err := p.out.Init(p.rate, p.rate.N(100*time.Millisecond)); err != nil {
		p.log.Warn("audio device unavailable, continuing without sound", zap.Error(err))
		p.SetEnabled(false)
		return nil
	}
	p.mixer = &beep.Mixer{}
	p.out.Play(p.mixer)
	p.ready = true
	p.log.Info("audio ready", zap.Int("sample_rate", p.cfg.SampleRate))
	return nil
}

// Click queues one short sine tone.
func (p *Player) Click() {
	if !p.ready || !p.Enabled() {
		return
	}
	tone, err := generators.SineTone(p.rate, p.cfg.ClickHz)
	if err != nil {
		p.log.Warn("click tone", zap.Error(err))
		return
	}
	click := &effects.Gain{
		Streamer: beep.Take(p.rate.N(p.cfg.ClickMs), tone),
		Gain:     -0.7,
	}
	p.out.Lock()
	p.mixer.Add(click)
	p.out.Unlock()

	p.mu.Lock()
	p.clicks++
	p.mu.Unlock()
}

func (p *Player) Clicks() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks
}

func (p *Player) Terminate() error {
	if !p.ready {
		return nil
	}
	p.out.Lock()
	p.mixer.Clear()
	p.out.Unlock()
	p.out.Close()
	p.ready = false
	return nil
}
