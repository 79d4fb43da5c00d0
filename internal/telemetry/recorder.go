// Package telemetry samples frame timing into the database.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/system"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/persist"
	"github.com/l1jgo/lifecycle/internal/timing"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const dbTimeout = 5 * time.Second

// Recorder stores one run row per process and a timing sample every
// SampleEvery frames. Samples are written in batches from EndDraw; Terminate
// flushes the remainder and closes the database.
type Recorder struct {
	unit.Base
	cfg    config.TelemetryConfig
	engine string
	log    *zap.Logger

	db    *persist.DB
	repo  *persist.FrameRepo
	clock *timing.Clock
	sched *system.Scheduler

	runID   uuid.UUID
	frame   uint64
	batch   []persist.Sample
	written int
}

func (r *Recorder) Setup(reg *unit.Registry) error {
	r.log = reg.Logger().Named("telemetry")
	cfg := config.Default()
	if c, ok := unit.Resource[*config.Config](reg); ok {
		cfg = c
	}
	r.cfg = cfg.Telemetry
	r.engine = cfg.Engine.Name
	return nil
}

func (r *Recorder) Initialize() error {
	if !r.cfg.Enabled {
		r.SetEnabled(false)
		return nil
	}
	if r.cfg.SampleEvery == 0 || r.cfg.BatchSize < 1 {
		return fmt.Errorf("telemetry: sample_every=%d batch_size=%d, both must be at least 1",
			r.cfg.SampleEvery, r.cfg.BatchSize)
	}
	reg := r.Registry()
	r.clock, _ = unit.Get[timing.Clock](reg)
	r.sched, _ = unit.Resource[*system.Scheduler](reg)

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	db, err := persist.Open(ctx, r.cfg, r.log)
	if err != nil {
		return err
	}
	if err := persist.RunMigrations(ctx, db); err != nil {
		db.Close()
		return err
	}
	r.db = db
	r.repo = persist.NewFrameRepo(db)

	run := persist.Run{
		ID:        uuid.New(),
		Name:      r.engine,
		StartedAt: time.Now(),
	}
	if r.sched != nil {
		run.Schedule = r.sched.Schedule()
		run.Digest = r.sched.Digest()
	}
	if err := r.repo.CreateRun(ctx, run); err != nil {
		return err
	}
	r.runID = run.ID
	r.batch = make([]persist.Sample, 0, r.cfg.BatchSize)
	r.log.Info("telemetry run started",
		zap.String("run", run.ID.String()),
		zap.String("driver", r.cfg.Driver))
	return nil
}

func (r *Recorder) EndDraw() {
	if r.repo == nil {
		return
	}
	frame := r.frame
	r.frame++
	if frame%r.cfg.SampleEvery != 0 {
		return
	}

	s := persist.Sample{RunID: r.runID, Frame: frame, RecordedAt: time.Now()}
	if r.clock != nil {
		s.Delta = r.clock.Delta()
		s.FPS = r.clock.FPS()
	}
	r.batch = append(r.batch, s)
	if len(r.batch) >= r.cfg.BatchSize {
		if err := r.flush(); err != nil {
			r.log.Error("telemetry flush failed", zap.Error(err))
		}
	}
}

// flush writes the pending batch. A failed batch is dropped so one bad write
// does not grow memory for the rest of the run.
func (r *Recorder) flush() error {
	if len(r.batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	err := r.repo.InsertSamples(ctx, r.batch)
	if err == nil {
		r.written += len(r.batch)
	}
	r.batch = r.batch[:0]
	return err
}

// RunID identifies this process's run row. Zero when telemetry is off.
func (r *Recorder) RunID() uuid.UUID { return r.runID }

// Written counts samples stored so far.
func (r *Recorder) Written() int { return r.written }

func (r *Recorder) Terminate() error {
	if r.db == nil {
		return nil
	}
	var errs error
	if r.repo != nil && r.runID != uuid.Nil {
		errs = multierr.Append(errs, r.flush())
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		errs = multierr.Append(errs, r.repo.FinishRun(ctx, r.runID, r.frame, time.Now()))
		cancel()
	}
	errs = multierr.Append(errs, r.db.Close())
	r.db = nil
	r.repo = nil
	if errs != nil {
		return fmt.Errorf("telemetry: %w", errs)
	}
	r.log.Info("telemetry run finished", zap.Int("samples", r.written), zap.Uint64("frames", r.frame))
	return nil
}
