package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tidesync/replica/tick"
)

// Entry is one journaled diff.
type Entry struct {
	Tick    tick.Tick
	Payload []byte
}

// Recorder buffers encoded diffs from the send phase and flushes them in
// batches. Record itself never touches the database, so the scheduling
// pass stays free of I/O; the host calls Flush on its own cadence.
type Recorder struct {
	db    *DB
	runID uuid.UUID
	buf   []Entry
	log   *zap.Logger
}

func NewRecorder(db *DB, log *zap.Logger) *Recorder {
	return &Recorder{
		db:    db,
		runID: uuid.New(),
		log:   log.Named("journal"),
	}
}

// RunID identifies this recording session in the diff log.
func (r *Recorder) RunID() uuid.UUID { return r.runID }

// Record buffers one tick's canonical diff. Called by the engine.
func (r *Recorder) Record(t tick.Tick, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.buf = append(r.buf, Entry{Tick: t, Payload: buf})
	return nil
}

// Pending returns the number of unflushed entries.
func (r *Recorder) Pending() int { return len(r.buf) }

// Flush writes all buffered entries in a single transaction.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range r.buf {
		if _, err := tx.Exec(ctx,
			`INSERT INTO diff_log (run_id, tick, payload) VALUES ($1, $2, $3)`,
			r.runID, int64(e.Tick), e.Payload,
		); err != nil {
			return fmt.Errorf("journal insert tick %d: %w", e.Tick, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	r.log.Debug("flushed", zap.Int("entries", len(r.buf)))
	r.buf = r.buf[:0]
	return nil
}

// Load reads a run's diffs for the given tick range in ascending order,
// for replay against a fresh replica.
func Load(ctx context.Context, db *DB, runID uuid.UUID, from, to tick.Tick) ([]Entry, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT tick, payload FROM diff_log
		 WHERE run_id = $1 AND tick >= $2 AND tick <= $3
		 ORDER BY tick ASC`,
		runID, int64(from), int64(to),
	)
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var t int64
		var payload []byte
		if err := rows.Scan(&t, &payload); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		out = append(out, Entry{Tick: tick.Tick(t), Payload: payload})
	}
	return out, rows.Err()
}
