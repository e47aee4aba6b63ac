package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

// IndexEntry is one row of the session index.
type IndexEntry struct {
	ID            string
	Workflow      string
	SourceFile    string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        models.SessionStatus
	TotalTasks    int
	CompleteTasks int
	FailedTasks   int
	StatusDir     string
}

// RecordSession inserts a newly started session into the index.
func (db *DB) RecordSession(e *IndexEntry) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, workflow, source_file, started_at, status, total_tasks, complete_tasks, failed_tasks, status_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Workflow, e.SourceFile, formatTime(e.StartedAt), string(e.Status), e.TotalTasks, e.CompleteTasks, e.FailedTasks, e.StatusDir)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// FinishSession updates a session's terminal status and counters.
func (db *DB) FinishSession(id string, status models.SessionStatus, completedAt time.Time, complete, failed int) error {
	result, err := db.Exec(`
		UPDATE sessions SET status = ?, completed_at = ?, complete_tasks = ?, failed_tasks = ?
		WHERE id = ?
	`, string(status), formatTime(completedAt), complete, failed, id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish session: %s not indexed", id)
	}
	return nil
}

// GetSession retrieves an index entry by ID. It returns nil when the
// session is not indexed.
func (db *DB) GetSession(id string) (*IndexEntry, error) {
	row := db.QueryRow(`
		SELECT id, workflow, source_file, started_at, completed_at, status, total_tasks, complete_tasks, failed_tasks, status_dir
		FROM sessions WHERE id = ?
	`, id)

	e, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return e, nil
}

// History returns the most recent sessions, newest first. A limit of
// zero or less returns everything.
func (db *DB) History(limit int) ([]*IndexEntry, error) {
	query := `
		SELECT id, workflow, source_file, started_at, completed_at, status, total_tasks, complete_tasks, failed_tasks, status_dir
		FROM sessions ORDER BY started_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []*IndexEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeBefore removes index entries for sessions started before the
// cutoff, returning the removed entries so callers can delete the
// matching status directories.
func (db *DB) PurgeBefore(cutoff time.Time) ([]*IndexEntry, error) {
	rows, err := db.Query(`
		SELECT id, workflow, source_file, started_at, completed_at, status, total_tasks, complete_tasks, failed_tasks, status_dir
		FROM sessions WHERE started_at < ?
	`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query stale sessions: %w", err)
	}
	defer rows.Close()

	var entries []*IndexEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stale row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := db.Exec(`DELETE FROM sessions WHERE started_at < ?`, formatTime(cutoff)); err != nil {
		return nil, fmt.Errorf("purge stale sessions: %w", err)
	}
	return entries, nil
}

func scanEntry(scan func(dest ...any) error) (*IndexEntry, error) {
	var e IndexEntry
	var startedAt string
	var completedAt sql.NullString
	var status string
	err := scan(&e.ID, &e.Workflow, &e.SourceFile, &startedAt, &completedAt, &status,
		&e.TotalTasks, &e.CompleteTasks, &e.FailedTasks, &e.StatusDir)
	if err != nil {
		return nil, err
	}
	e.StartedAt, _ = parseTime(startedAt)
	e.CompletedAt = parseNullableTime(completedAt)
	e.Status = models.SessionStatus(status)
	return &e, nil
}
