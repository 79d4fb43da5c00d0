package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run is one execution of the frame loop.
type Run struct {
	ID        uuid.UUID
	Name      string
	Schedule  []string
	Digest    string
	StartedAt time.Time
	EndedAt   *time.Time
	Frames    uint64
}

// Sample is the frame timing recorded every N frames.
type Sample struct {
	RunID      uuid.UUID
	Frame      uint64
	Delta      time.Duration
	FPS        float64
	RecordedAt time.Time
}

type FrameRepo struct {
	db *DB
}

func NewFrameRepo(db *DB) *FrameRepo {
	return &FrameRepo{db: db}
}

func (r *FrameRepo) CreateRun(ctx context.Context, run Run) error {
	_, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO runs (id, name, schedule, digest, started_at)
		 VALUES (?, ?, ?, ?, ?)`),
		run.ID.String(), run.Name, strings.Join(run.Schedule, ","), run.Digest, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun stamps the end time and the final frame count.
func (r *FrameRepo) FinishRun(ctx context.Context, id uuid.UUID, frames uint64, endedAt time.Time) error {
	_, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(
		`UPDATE runs SET ended_at = ?, frames = ? WHERE id = ?`),
		endedAt.UTC(), int64(frames), id.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LoadRun returns nil, nil when the run does not exist.
func (r *FrameRepo) LoadRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var (
		schedule string
		frames   int64
		ended    sql.NullTime
	)
	run := &Run{ID: id}
	err := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(
		`SELECT name, schedule, digest, started_at, ended_at, frames
		 FROM runs WHERE id = ?`), id.String(),
	).Scan(&run.Name, &schedule, &run.Digest, &run.StartedAt, &ended, &frames)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if schedule != "" {
		run.Schedule = strings.Split(schedule, ",")
	}
	if ended.Valid {
		run.EndedAt = &ended.Time
	}
	run.Frames = uint64(frames)
	return run, nil
}

// InsertSamples writes a batch of samples in a single transaction.
func (r *FrameRepo) InsertSamples(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("samples begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(
		`INSERT INTO frame_samples (run_id, frame, delta_us, fps, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("samples prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx,
			s.RunID.String(), int64(s.Frame), s.Delta.Microseconds(), s.FPS, s.RecordedAt.UTC(),
		); err != nil {
			return fmt.Errorf("samples insert frame %d: %w", s.Frame, err)
		}
	}
	return tx.Commit()
}

func (r *FrameRepo) CountSamples(ctx context.Context, runID uuid.UUID) (int, error) {
	var n int
	err := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(
		`SELECT COUNT(*) FROM frame_samples WHERE run_id = ?`), runID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}
