package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Journal wraps the local SQLite database recording dispatch attempts.
type Journal struct {
	conn *sql.DB
}

// New opens (and if necessary creates) the journal database at dbPath.
func New(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		backend TEXT NOT NULL,
		model TEXT NOT NULL,
		worktree TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		output TEXT DEFAULT '',
		error TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// CreateRun inserts a new run record.
func (j *Journal) CreateRun(run *Run) error {
	_, err := j.conn.Exec(`
		INSERT INTO runs (id, task_id, title, backend, model, worktree, status, started_at, output, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TaskID, run.Title, run.Backend, run.Model, run.Worktree, run.Status, run.StartedAt, run.Output, run.Error)
	return err
}

// UpdateRun updates a run's terminal fields.
func (j *Journal) UpdateRun(run *Run) error {
	_, err := j.conn.Exec(`
		UPDATE runs SET status = ?, ended_at = ?, output = ?, error = ?
		WHERE id = ?
	`, run.Status, run.EndedAt, run.Output, run.Error, run.ID)
	return err
}

const runColumns = "id, task_id, title, backend, model, worktree, status, started_at, ended_at, output, error"

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	run := &Run{}
	err := row.Scan(&run.ID, &run.TaskID, &run.Title, &run.Backend, &run.Model,
		&run.Worktree, &run.Status, &run.StartedAt, &run.EndedAt, &run.Output, &run.Error)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by id.
func (j *Journal) GetRun(id string) (*Run, error) {
	return scanRun(j.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
}

// ListRuns retrieves the most recent runs across all tasks.
func (j *Journal) ListRuns(limit int) ([]*Run, error) {
	rows, err := j.conn.Query("SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetTaskRuns retrieves the most recent runs for one task.
func (j *Journal) GetTaskRuns(taskID string, limit int) ([]*Run, error) {
	rows, err := j.conn.Query("SELECT "+runColumns+" FROM runs WHERE task_id = ? ORDER BY started_at DESC LIMIT ?", taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkStaleRunsAsFailed marks all runs still "running" as failed. Called on
// startup: leases are process-local, so any run left running belongs to a
// previous process.
func (j *Journal) MarkStaleRunsAsFailed() (int64, error) {
	result, err := j.conn.Exec(`
		UPDATE runs
		SET status = ?, error = 'process restarted during execution', ended_at = CURRENT_TIMESTAMP
		WHERE status = ?
	`, RunStatusFailed, RunStatusRunning)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
