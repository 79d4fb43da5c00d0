package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/lifecycle/internal/builtin"
	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/system"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/demo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// engine is one assembled registry and its scheduler.
type engine struct {
	cfg   *config.Config
	log   *zap.Logger
	reg   *unit.Registry
	sched *system.Scheduler
}

// buildEngine registers the built-ins and the demo unit and applies the
// configured disabled list. No unit hook beyond Setup runs.
func buildEngine(cfg *config.Config, log *zap.Logger) (*engine, error) {
	var opts []unit.Option
	if cfg.Scheduler.StrictRegistration {
		opts = append(opts, unit.WithStrictRegistration())
	}
	reg := unit.NewRegistry(log, opts...)
	sched := system.NewScheduler(reg, log)
	unit.Provide(reg, cfg)
	unit.Provide(reg, sched)

	if err := builtin.Register(reg); err != nil {
		return nil, fmt.Errorf("register built-ins: %w", err)
	}
	if _, err := unit.Register[demo.Spinner](reg); err != nil {
		return nil, fmt.Errorf("register demo: %w", err)
	}
	if err := disableUnits(reg, cfg.Engine.DisabledUnits); err != nil {
		return nil, err
	}
	return &engine{cfg: cfg, log: log, reg: reg, sched: sched}, nil
}

func disableUnits(reg *unit.Registry, names []string) error {
	if len(names) == 0 {
		return nil
	}
	byName := make(map[string]unit.Unit, reg.Len())
	for _, u := range reg.Units() {
		byName[u.Name()] = u
	}
	for _, name := range names {
		u, ok := byName[name]
		if !ok {
			return fmt.Errorf("engine.disabled_units: unknown unit %q", name)
		}
		u.SetEnabled(false)
	}
	return nil
}

// run initializes every unit, drives frames on the configured tick until a
// unit stops the loop, ctx is cancelled or max_frames is reached, and always
// terminates.
func (e *engine) run(ctx context.Context) (err error) {
	defer func() {
		if terr := e.sched.Terminate(); terr != nil {
			err = multierr.Append(err, terr)
		}
	}()

	if err := e.sched.Initialize(); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.Engine.FrameRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("shutdown requested", zap.Uint64("frame", e.sched.Frames()))
			return nil
		case <-ticker.C:
			if !e.sched.RunFrame() {
				return nil
			}
			if limit := e.cfg.Engine.MaxFrames; limit > 0 && e.sched.Frames() >= limit {
				e.log.Info("frame limit reached", zap.Uint64("max_frames", limit))
				return nil
			}
		}
	}
}
