package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/assetflow/internal/runner"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

var _ runner.Recorder = (*DB)(nil)

// StartRun inserts a run in the running state.
func (db *DB) StartRun(ctx context.Context, run *models.Run) error {
	targets, _ := json.Marshal(run.Targets)

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO runs (id, targets, env, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, string(targets), string(run.Env), formatTime(run.StartedAt), string(run.Status))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// RecordTask stores the outcome of one task.
func (db *DB) RecordTask(ctx context.Context, tr *models.TaskRun) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO task_runs (run_id, task, status, started_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tr.RunID, tr.Task, string(tr.Status), formatTime(tr.StartedAt), tr.Duration.Milliseconds(), nullString(tr.Error))
	if err != nil {
		return fmt.Errorf("record task %s: %w", tr.Task, err)
	}
	return nil
}

// FinishRun stores the final status of a run.
func (db *DB) FinishRun(ctx context.Context, run *models.Run) error {
	var finishedAt *string
	if run.FinishedAt != nil {
		s := formatTime(*run.FinishedAt)
		finishedAt = &s
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?
	`, finishedAt, string(run.Status), nullString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*models.Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, targets, env, started_at, finished_at, status, error
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = -1
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, targets, env, started_at, finished_at, status, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListTaskRuns returns the task outcomes of a run in recording order.
func (db *DB) ListTaskRuns(ctx context.Context, runID string) ([]models.TaskRun, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, task, status, started_at, duration_ms, error
		FROM task_runs WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	var out []models.TaskRun
	for rows.Next() {
		var tr models.TaskRun
		var startedAt string
		var durationMS int64
		var errText sql.NullString
		if err := rows.Scan(&tr.RunID, &tr.Task, &tr.Status, &startedAt, &durationMS, &errText); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		tr.StartedAt, _ = parseTime(startedAt)
		tr.Duration = time.Duration(durationMS) * time.Millisecond
		tr.Error = errText.String
		out = append(out, tr)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes runs started before the cutoff, with their task
// records. Returns the number of runs deleted.
func (db *DB) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	db.mu.Lock()
	defer db.mu.Unlock()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM task_runs WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("purge task runs: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var targets, startedAt string
	var finishedAt, errText sql.NullString
	if err := row.Scan(&run.ID, &targets, &run.Env, &startedAt, &finishedAt, &run.Status, &errText); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(targets), &run.Targets); err != nil {
		return nil, fmt.Errorf("decode targets of run %s: %w", run.ID, err)
	}
	run.StartedAt, _ = parseTime(startedAt)
	run.FinishedAt = parseNullableTime(finishedAt)
	run.Error = errText.String
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
