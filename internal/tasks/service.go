// Package tasks manages the task board and the selected now task.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/verte-zerg/wrangler/internal/apperrors"
	"github.com/verte-zerg/wrangler/internal/clock"
	"github.com/verte-zerg/wrangler/internal/model"
)

// Store persists tasks.
type Store interface {
	InsertTask(ctx context.Context, task model.Task) (int64, error)
	GetTask(ctx context.Context, id int64) (model.Task, error)
	UpdateTask(ctx context.Context, id int64, upd model.TaskUpdate) error
	DeleteTask(ctx context.Context, id int64) error
	ListTasks(ctx context.Context, status *model.TaskStatus) ([]model.Task, error)
}

// NowState remembers the now task between runs.
type NowState interface {
	LoadNowTask() (*int64, error)
	SaveNowTask(id *int64) error
}

// Draft holds the user-editable fields of a new task.
type Draft struct {
	Title              string
	Notes              string
	Effort             model.TaskEffort
	EstimatedPomodoros *int
}

var splitParts = []struct {
	prefix string
	notes  string
}{
	{prefix: "Start: ", notes: "Initial steps and setup"},
	{prefix: "Continue: ", notes: "Main work and progress"},
	{prefix: "Finish: ", notes: "Final touches and completion"},
}

// Service implements board operations on top of a Store.
type Service struct {
	store Store
	now   NowState
	clock clock.Clock
	log   hclog.Logger
}

// NewService builds a Service. now may be nil when the now task is not needed.
func NewService(store Store, now NowState, clk clock.Clock, logger hclog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{store: store, now: now, clock: clk, log: logger.Named("tasks")}
}

// Create adds a task with the given status; an empty status means inbox.
func (s *Service) Create(ctx context.Context, draft Draft, status model.TaskStatus) (model.Task, error) {
	const op = "task.create"
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return model.Task{}, apperrors.New(apperrors.ErrInvalidInput, op, errors.New("title is empty"))
	}
	if draft.EstimatedPomodoros != nil && *draft.EstimatedPomodoros < 0 {
		return model.Task{}, apperrors.New(apperrors.ErrInvalidInput, op, errors.New("estimate is negative"))
	}
	if status == "" {
		status = model.Inbox
	}
	now := s.clock.Now()
	task := model.Task{
		Title:              title,
		Notes:              draft.Notes,
		Status:             status,
		Effort:             draft.Effort,
		EstimatedPomodoros: draft.EstimatedPomodoros,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if status == model.Done {
		task.CompletedAt = &now
	}
	id, err := s.store.InsertTask(ctx, task)
	if err != nil {
		return model.Task{}, apperrors.New(apperrors.ErrStoreUnavailable, op, err)
	}
	task.ID = id
	return task, nil
}

// Update merges upd into the task and bumps its update time.
func (s *Service) Update(ctx context.Context, id int64, upd model.TaskUpdate) error {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "task.update", errors.New("title is empty"))
	}
	now := s.clock.Now()
	upd.UpdatedAt = &now
	if err := s.store.UpdateTask(ctx, id, upd); err != nil {
		return apperrors.Classify("task.update", err)
	}
	return nil
}

// Delete removes a task. Sessions tracked against it are kept. Deleting the
// now task clears the selection.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return apperrors.Classify("task.delete", err)
	}
	s.forgetNow(id)
	return nil
}

// ChangeStatus moves a task to another column. Moving to done stamps the
// completion time.
func (s *Service) ChangeStatus(ctx context.Context, id int64, status model.TaskStatus) error {
	now := s.clock.Now()
	upd := model.TaskUpdate{Status: &status, UpdatedAt: &now}
	if status == model.Done {
		upd.CompletedAt = &now
	}
	if err := s.store.UpdateTask(ctx, id, upd); err != nil {
		return apperrors.Classify("task.status", err)
	}
	s.log.Debug("task moved", "task_id", id, "status", status)
	return nil
}

// MoveToToday moves a task to the today column.
func (s *Service) MoveToToday(ctx context.Context, id int64) error {
	return s.ChangeStatus(ctx, id, model.Today)
}

// MoveToDoing moves a task to the doing column.
func (s *Service) MoveToDoing(ctx context.Context, id int64) error {
	return s.ChangeStatus(ctx, id, model.Doing)
}

// MarkDone completes a task.
func (s *Service) MarkDone(ctx context.Context, id int64) error {
	return s.ChangeStatus(ctx, id, model.Done)
}

// Split replaces a task with start, continue and finish subtasks that share
// its status and effort and a third of its estimate, rounded up.
func (s *Service) Split(ctx context.Context, id int64) ([]model.Task, error) {
	const op = "task.split"
	parent, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, apperrors.Classify(op, err)
	}

	var estimate *int
	if parent.EstimatedPomodoros != nil && *parent.EstimatedPomodoros > 0 {
		v := (*parent.EstimatedPomodoros + len(splitParts) - 1) / len(splitParts)
		estimate = &v
	}

	created := make([]model.Task, 0, len(splitParts))
	for _, part := range splitParts {
		child, err := s.Create(ctx, Draft{
			Title:              part.prefix + parent.Title,
			Notes:              part.notes,
			Effort:             parent.Effort,
			EstimatedPomodoros: estimate,
		}, parent.Status)
		if err != nil {
			s.rollback(ctx, created)
			return nil, err
		}
		created = append(created, child)
	}

	if err := s.store.DeleteTask(ctx, id); err != nil {
		s.rollback(ctx, created)
		return nil, apperrors.Classify(op, err)
	}
	s.forgetNow(id)
	return created, nil
}

func (s *Service) rollback(ctx context.Context, created []model.Task) {
	for _, task := range created {
		if err := s.store.DeleteTask(ctx, task.ID); err != nil {
			s.log.Warn("failed to roll back subtask", "task_id", task.ID, "err", err)
		}
	}
}

// List returns tasks newest first. A nil status lists every task.
func (s *Service) List(ctx context.Context, status *model.TaskStatus) ([]model.Task, error) {
	list, err := s.store.ListTasks(ctx, status)
	if err != nil {
		return nil, apperrors.Classify("task.list", err)
	}
	return list, nil
}

// Get returns a task by id.
func (s *Service) Get(ctx context.Context, id int64) (model.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, apperrors.Classify("task.get", err)
	}
	return task, nil
}

// Now returns the selected now task, or nil when none is set. A selection
// pointing at a deleted task is cleared.
func (s *Service) Now(ctx context.Context) (*model.Task, error) {
	if s.now == nil {
		return nil, nil
	}
	id, err := s.now.LoadNowTask()
	if err != nil {
		return nil, fmt.Errorf("failed to load now task: %w", err)
	}
	if id == nil {
		return nil, nil
	}
	task, err := s.store.GetTask(ctx, *id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.log.Info("now task vanished, clearing", "task_id", *id)
			if serr := s.now.SaveNowTask(nil); serr != nil {
				return nil, fmt.Errorf("failed to clear now task: %w", serr)
			}
			return nil, nil
		}
		return nil, apperrors.Classify("task.now", err)
	}
	return &task, nil
}

// SetNow selects the task the next focus session tracks. A nil id clears it.
func (s *Service) SetNow(ctx context.Context, id *int64) error {
	if s.now == nil {
		return errors.New("now task state is not configured")
	}
	if id != nil {
		if _, err := s.store.GetTask(ctx, *id); err != nil {
			return apperrors.Classify("task.set_now", err)
		}
	}
	if err := s.now.SaveNowTask(id); err != nil {
		return fmt.Errorf("failed to save now task: %w", err)
	}
	return nil
}

func (s *Service) forgetNow(id int64) {
	if s.now == nil {
		return
	}
	current, err := s.now.LoadNowTask()
	if err != nil || current == nil || *current != id {
		return
	}
	if err := s.now.SaveNowTask(nil); err != nil {
		s.log.Warn("failed to clear now task", "task_id", id, "err", err)
	}
}
