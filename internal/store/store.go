// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/verte-zerg/wrangler/internal/apperrors"
	"github.com/verte-zerg/wrangler/internal/model"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Collection names reported in change notifications.
const (
	Tasks         = "tasks"
	Sessions      = "sessions"
	Interruptions = "interruptions"
)

// Change operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Change describes a committed write.
type Change struct {
	Collection string
	Op         string
	ID         int64
}

// Store wraps SQLite access for tasks, sessions and interruptions.
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	nextSub   int
	listeners map[int]func(Change)
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection keeps increments serialized.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, listeners: map[int]func(Change){}}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			effort TEXT NOT NULL DEFAULT '',
			estimated_pomodoros INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER REFERENCES tasks(id) ON DELETE SET NULL,
			type TEXT NOT NULL,
			planned_duration_s INTEGER NOT NULL,
			actual_duration_s INTEGER,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			interruption_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS interruptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			note TEXT,
			timestamp TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_task_id ON sessions(task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_interruptions_session_id ON interruptions(session_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers fn to be called after every committed write.
// The returned function removes the listener.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(collection, op string, id int64) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	change := Change{Collection: collection, Op: op, ID: id}
	for _, fn := range fns {
		fn(change)
	}
}

// InsertTask stores a new task and returns its id.
func (s *Store) InsertTask(ctx context.Context, task model.Task) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, notes, status, effort, estimated_pomodoros, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Title,
		task.Notes,
		string(task.Status),
		string(task.Effort),
		nullInt(task.EstimatedPomodoros),
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
		nullTime(task.CompletedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notify(Tasks, OpInsert, id)
	return id, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (model.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, notes, status, effort, estimated_pomodoros, created_at, updated_at, completed_at
		 FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %d: %w", id, apperrors.ErrNotFound)
	}
	return task, err
}

// UpdateTask merges the non-nil fields of upd into the task.
func (s *Store) UpdateTask(ctx context.Context, id int64, upd model.TaskUpdate) error {
	sets := []string{}
	args := []any{}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *upd.Notes)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Effort != nil {
		sets = append(sets, "effort = ?")
		args = append(args, string(*upd.Effort))
	}
	if upd.EstimatedPomodoros != nil {
		sets = append(sets, "estimated_pomodoros = ?")
		args = append(args, *upd.EstimatedPomodoros)
	}
	if upd.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, formatTime(*upd.CompletedAt))
	}
	if upd.UpdatedAt != nil {
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(*upd.UpdatedAt))
	}
	if len(sets) == 0 {
		_, err := s.GetTask(ctx, id)
		return err
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ?`, strings.Join(sets, ", "))
	if err := s.execOne(ctx, fmt.Sprintf("task %d", id), query, args...); err != nil {
		return err
	}
	s.notify(Tasks, OpUpdate, id)
	return nil
}

// DeleteTask removes a task. Sessions keep their history with no task.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	if err := s.execOne(ctx, fmt.Sprintf("task %d", id), `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return err
	}
	s.notify(Tasks, OpDelete, id)
	return nil
}

// ListTasks returns tasks newest first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, status *model.TaskStatus) ([]model.Task, error) {
	query := `SELECT id, title, notes, status, effort, estimated_pomodoros, created_at, updated_at, completed_at
		FROM tasks`
	args := []any{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// InsertSession stores a new session and returns its id.
func (s *Store) InsertSession(ctx context.Context, sess model.Session) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (task_id, type, planned_duration_s, actual_duration_s, started_at, ended_at, interruption_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(sess.TaskID),
		string(sess.Type),
		sess.PlannedDurationSeconds,
		nullInt(sess.ActualDurationSeconds),
		formatTime(sess.StartedAt),
		nullTime(sess.EndedAt),
		sess.InterruptionCount,
	)
	if err != nil {
		if sess.TaskID != nil && isForeignKeyViolation(err) {
			return 0, fmt.Errorf("task %d: %w", *sess.TaskID, apperrors.ErrNotFound)
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notify(Sessions, OpInsert, id)
	return id, nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, type, planned_duration_s, actual_duration_s, started_at, ended_at, interruption_count
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	return sess, err
}

// FinishSession records the end time and actual duration of a session.
func (s *Store) FinishSession(ctx context.Context, id int64, actualSeconds int, endedAt time.Time) error {
	err := s.execOne(ctx, fmt.Sprintf("session %d", id),
		`UPDATE sessions SET actual_duration_s = ?, ended_at = ? WHERE id = ?`,
		actualSeconds, formatTime(endedAt), id)
	if err != nil {
		return err
	}
	s.notify(Sessions, OpUpdate, id)
	return nil
}

// IncrementInterruptionCount adds one to the session's interruption count.
// The increment happens inside SQLite so concurrent adds are never lost.
func (s *Store) IncrementInterruptionCount(ctx context.Context, id int64) error {
	err := s.execOne(ctx, fmt.Sprintf("session %d", id),
		`UPDATE sessions SET interruption_count = interruption_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	s.notify(Sessions, OpUpdate, id)
	return nil
}

// ListSessions returns sessions newest first, filtered by task, start time and limit.
func (s *Store) ListSessions(ctx context.Context, filter model.HistoryFilter) ([]model.Session, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.TaskID != nil {
		clauses = append(clauses, "task_id = ?")
		args = append(args, *filter.TaskID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	query := fmt.Sprintf(`SELECT id, task_id, type, planned_duration_s, actual_duration_s, started_at, ended_at, interruption_count
		FROM sessions
		WHERE %s
		ORDER BY started_at DESC, id DESC`, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session and its interruptions.
func (s *Store) DeleteSession(ctx context.Context, id int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM interruptions WHERE session_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.notify(Sessions, OpDelete, id)
	return nil
}

// InsertInterruption stores an interruption against an existing session.
func (s *Store) InsertInterruption(ctx context.Context, in model.Interruption) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, in.SessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("session %d: %w", in.SessionID, apperrors.ErrNotFound)
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO interruptions (session_id, category, note, timestamp) VALUES (?, ?, ?, ?)`,
		in.SessionID, string(in.Category), nullString(in.Note), formatTime(in.Timestamp))
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	s.notify(Interruptions, OpInsert, id)
	return id, nil
}

// ListInterruptions returns the interruptions of a session in time order.
func (s *Store) ListInterruptions(ctx context.Context, sessionID int64) ([]model.Interruption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, category, note, timestamp
		 FROM interruptions WHERE session_id = ?
		 ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.Interruption
	for rows.Next() {
		var in model.Interruption
		var category, ts string
		var note sql.NullString
		if err := rows.Scan(&in.ID, &in.SessionID, &category, &note, &ts); err != nil {
			return nil, err
		}
		in.Category = model.InterruptionCategory(category)
		in.Note = note.String
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		in.Timestamp = parsed
		result = append(result, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var task model.Task
	var status, effort, createdAt, updatedAt string
	var estimate sql.NullInt64
	var completedAt sql.NullString
	if err := row.Scan(&task.ID, &task.Title, &task.Notes, &status, &effort, &estimate, &createdAt, &updatedAt, &completedAt); err != nil {
		return model.Task{}, err
	}
	task.Status = model.TaskStatus(status)
	task.Effort = model.TaskEffort(effort)
	if estimate.Valid {
		v := int(estimate.Int64)
		task.EstimatedPomodoros = &v
	}
	var err error
	if task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.Task{}, err
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return model.Task{}, err
	}
	if task.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func scanSession(row rowScanner) (model.Session, error) {
	var sess model.Session
	var taskID, actual sql.NullInt64
	var typ, startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&sess.ID, &taskID, &typ, &sess.PlannedDurationSeconds, &actual, &startedAt, &endedAt, &sess.InterruptionCount); err != nil {
		return model.Session{}, err
	}
	sess.Type = model.SessionType(typ)
	if taskID.Valid {
		v := taskID.Int64
		sess.TaskID = &v
	}
	if actual.Valid {
		v := int(actual.Int64)
		sess.ActualDurationSeconds = &v
	}
	var err error
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return model.Session{}, err
	}
	if sess.EndedAt, err = parseNullTime(endedAt); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// timeLayout is fixed width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
