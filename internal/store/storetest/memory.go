// Package storetest provides an in-memory store with fault injection for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/verte-zerg/wrangler/internal/apperrors"
	"github.com/verte-zerg/wrangler/internal/model"
)

// Method names accepted by Fail.
const (
	InsertTask                 = "InsertTask"
	GetTask                    = "GetTask"
	UpdateTask                 = "UpdateTask"
	DeleteTask                 = "DeleteTask"
	ListTasks                  = "ListTasks"
	InsertSession              = "InsertSession"
	GetSession                 = "GetSession"
	FinishSession              = "FinishSession"
	IncrementInterruptionCount = "IncrementInterruptionCount"
	ListSessions               = "ListSessions"
	DeleteSession              = "DeleteSession"
	InsertInterruption         = "InsertInterruption"
	ListInterruptions          = "ListInterruptions"
)

// Memory keeps tasks, sessions and interruptions in maps keyed by
// auto-increment ids. It is safe for concurrent use.
type Memory struct {
	mu            sync.Mutex
	nextID        int64
	tasks         map[int64]model.Task
	sessions      map[int64]model.Session
	interruptions map[int64]model.Interruption
	failures      map[string]error
	calls         map[string]int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		tasks:         map[int64]model.Task{},
		sessions:      map[int64]model.Session{},
		interruptions: map[int64]model.Interruption{},
		failures:      map[string]error{},
		calls:         map[string]int{},
	}
}

// Fail makes every later call to method return err. A nil err clears it.
func (m *Memory) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls returns how many times method was invoked, failed calls included.
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *Memory) enter(method string) error {
	m.calls[method]++
	return m.failures[method]
}

func (m *Memory) newID() int64 {
	m.nextID++
	return m.nextID
}

// InsertTask stores a task.
func (m *Memory) InsertTask(_ context.Context, task model.Task) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(InsertTask); err != nil {
		return 0, err
	}
	task.ID = m.newID()
	m.tasks[task.ID] = task
	return task.ID, nil
}

// GetTask returns a task by id.
func (m *Memory) GetTask(_ context.Context, id int64) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(GetTask); err != nil {
		return model.Task{}, err
	}
	task, ok := m.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %d: %w", id, apperrors.ErrNotFound)
	}
	return task, nil
}

// UpdateTask merges non-nil fields.
func (m *Memory) UpdateTask(_ context.Context, id int64, upd model.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(UpdateTask); err != nil {
		return err
	}
	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, apperrors.ErrNotFound)
	}
	if upd.Title != nil {
		task.Title = *upd.Title
	}
	if upd.Notes != nil {
		task.Notes = *upd.Notes
	}
	if upd.Status != nil {
		task.Status = *upd.Status
	}
	if upd.Effort != nil {
		task.Effort = *upd.Effort
	}
	if upd.EstimatedPomodoros != nil {
		v := *upd.EstimatedPomodoros
		task.EstimatedPomodoros = &v
	}
	if upd.CompletedAt != nil {
		v := *upd.CompletedAt
		task.CompletedAt = &v
	}
	if upd.UpdatedAt != nil {
		task.UpdatedAt = *upd.UpdatedAt
	}
	m.tasks[id] = task
	return nil
}

// DeleteTask removes a task and clears references from sessions.
func (m *Memory) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(DeleteTask); err != nil {
		return err
	}
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %d: %w", id, apperrors.ErrNotFound)
	}
	delete(m.tasks, id)
	for sid, sess := range m.sessions {
		if sess.TaskID != nil && *sess.TaskID == id {
			sess.TaskID = nil
			m.sessions[sid] = sess
		}
	}
	return nil
}

// ListTasks returns tasks newest first.
func (m *Memory) ListTasks(_ context.Context, status *model.TaskStatus) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ListTasks); err != nil {
		return nil, err
	}
	var out []model.Task
	for _, task := range m.tasks {
		if status != nil && task.Status != *status {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// InsertSession stores a session.
func (m *Memory) InsertSession(_ context.Context, sess model.Session) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(InsertSession); err != nil {
		return 0, err
	}
	sess.ID = m.newID()
	m.sessions[sess.ID] = sess
	return sess.ID, nil
}

// GetSession returns a session by id.
func (m *Memory) GetSession(_ context.Context, id int64) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(GetSession); err != nil {
		return model.Session{}, err
	}
	sess, ok := m.sessions[id]
	if !ok {
		return model.Session{}, fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	return sess, nil
}

// FinishSession records end time and actual duration.
func (m *Memory) FinishSession(_ context.Context, id int64, actualSeconds int, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(FinishSession); err != nil {
		return err
	}
	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	actual := actualSeconds
	ended := endedAt
	sess.ActualDurationSeconds = &actual
	sess.EndedAt = &ended
	m.sessions[id] = sess
	return nil
}

// IncrementInterruptionCount adds one to the session's count.
func (m *Memory) IncrementInterruptionCount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(IncrementInterruptionCount); err != nil {
		return err
	}
	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	sess.InterruptionCount++
	m.sessions[id] = sess
	return nil
}

// ListSessions returns sessions newest first.
func (m *Memory) ListSessions(_ context.Context, filter model.HistoryFilter) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ListSessions); err != nil {
		return nil, err
	}
	var out []model.Session
	for _, sess := range m.sessions {
		if filter.TaskID != nil && (sess.TaskID == nil || *sess.TaskID != *filter.TaskID) {
			continue
		}
		if filter.Since != nil && sess.StartedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteSession removes a session and its interruptions.
func (m *Memory) DeleteSession(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(DeleteSession); err != nil {
		return err
	}
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	delete(m.sessions, id)
	for iid, in := range m.interruptions {
		if in.SessionID == id {
			delete(m.interruptions, iid)
		}
	}
	return nil
}

// InsertInterruption stores an interruption for an existing session.
func (m *Memory) InsertInterruption(_ context.Context, in model.Interruption) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(InsertInterruption); err != nil {
		return 0, err
	}
	if _, ok := m.sessions[in.SessionID]; !ok {
		return 0, fmt.Errorf("session %d: %w", in.SessionID, apperrors.ErrNotFound)
	}
	in.ID = m.newID()
	m.interruptions[in.ID] = in
	return in.ID, nil
}

// ListInterruptions returns a session's interruptions oldest first.
func (m *Memory) ListInterruptions(_ context.Context, sessionID int64) ([]model.Interruption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ListInterruptions); err != nil {
		return nil, err
	}
	var out []model.Interruption
	for _, in := range m.interruptions {
		if in.SessionID == sessionID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RemoveSession deletes a session behind the caller's back, simulating a
// record that vanished between operations.
func (m *Memory) RemoveSession(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
