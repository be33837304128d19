// Package session creates and finalizes session and interruption records.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/verte-zerg/wrangler/internal/apperrors"
	"github.com/verte-zerg/wrangler/internal/clock"
	"github.com/verte-zerg/wrangler/internal/model"
)

// DefaultRecentLimit is the number of sessions Recent returns when asked for none.
const DefaultRecentLimit = 10

// SessionStore persists session records.
type SessionStore interface {
	InsertSession(ctx context.Context, sess model.Session) (int64, error)
	GetSession(ctx context.Context, id int64) (model.Session, error)
	FinishSession(ctx context.Context, id int64, actualSeconds int, endedAt time.Time) error
	IncrementInterruptionCount(ctx context.Context, id int64) error
	ListSessions(ctx context.Context, filter model.HistoryFilter) ([]model.Session, error)
	DeleteSession(ctx context.Context, id int64) error
}

// InterruptionStore persists interruption records.
type InterruptionStore interface {
	InsertInterruption(ctx context.Context, in model.Interruption) (int64, error)
	ListInterruptions(ctx context.Context, sessionID int64) ([]model.Interruption, error)
}

// Recorder owns session and interruption records.
type Recorder struct {
	sessions      SessionStore
	interruptions InterruptionStore
	clock         clock.Clock
	log           hclog.Logger
}

// NewRecorder builds a Recorder. A nil clock uses the system clock and a nil
// logger discards output.
func NewRecorder(sessions SessionStore, interruptions InterruptionStore, clk clock.Clock, logger hclog.Logger) *Recorder {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Recorder{
		sessions:      sessions,
		interruptions: interruptions,
		clock:         clk,
		log:           logger.Named("recorder"),
	}
}

// Open inserts a new session starting now. Nothing is written when it fails,
// so a failed call can be retried.
func (r *Recorder) Open(ctx context.Context, taskID *int64, typ model.SessionType, plannedSeconds int) (model.Session, error) {
	const op = "session.open"
	if plannedSeconds <= 0 {
		return model.Session{}, apperrors.New(apperrors.ErrInvalidInput, op, fmt.Errorf("planned duration %ds", plannedSeconds))
	}
	if typ != model.Focus && typ != model.Break {
		return model.Session{}, apperrors.New(apperrors.ErrInvalidInput, op, fmt.Errorf("session type %q", typ))
	}
	sess := model.Session{
		TaskID:                 copyID(taskID),
		Type:                   typ,
		PlannedDurationSeconds: plannedSeconds,
		StartedAt:              r.clock.Now(),
	}
	id, err := r.sessions.InsertSession(ctx, sess)
	if err != nil {
		r.log.Error("failed to open session", "type", typ, "err", err)
		// NotFound means the referenced task was deleted.
		return model.Session{}, apperrors.Classify(op, err)
	}
	sess.ID = id
	r.log.Debug("session opened", "session_id", id, "type", typ, "planned_s", plannedSeconds)
	return sess, nil
}

// Close finalizes a session with the given actual duration, ending it now.
// Repeating a call that already succeeded at the same instant writes nothing.
func (r *Recorder) Close(ctx context.Context, id int64, actualSeconds int) error {
	const op = "session.close"
	if actualSeconds < 0 {
		return apperrors.New(apperrors.ErrInvalidInput, op, fmt.Errorf("actual duration %ds", actualSeconds))
	}
	current, err := r.sessions.GetSession(ctx, id)
	if err != nil {
		return apperrors.Classify(op, err)
	}
	now := r.clock.Now()
	if current.Closed() && current.ActualDurationSeconds != nil && *current.ActualDurationSeconds == actualSeconds &&
		current.EndedAt != nil && current.EndedAt.Equal(now) {
		return nil
	}
	if err := r.sessions.FinishSession(ctx, id, actualSeconds, now); err != nil {
		return apperrors.Classify(op, err)
	}
	r.log.Debug("session closed", "session_id", id, "actual_s", actualSeconds)
	return nil
}

// LogInterruption stores an interruption and increments the session's count.
// When the record is stored but the increment fails, the returned error is an
// *apperrors.Inconsistency that can be passed to Repair.
func (r *Recorder) LogInterruption(ctx context.Context, sessionID int64, category model.InterruptionCategory, note string) (model.Interruption, error) {
	const op = "session.interruption"
	if _, err := model.ParseInterruptionCategory(string(category)); err != nil {
		return model.Interruption{}, apperrors.New(apperrors.ErrInvalidInput, op, err)
	}
	in := model.Interruption{
		SessionID: sessionID,
		Category:  category,
		Note:      note,
		Timestamp: r.clock.Now(),
	}
	id, err := r.interruptions.InsertInterruption(ctx, in)
	if err != nil {
		return model.Interruption{}, apperrors.Classify(op, err)
	}
	in.ID = id
	if err := r.sessions.IncrementInterruptionCount(ctx, sessionID); err != nil {
		r.log.Warn("interruption count not incremented", "session_id", sessionID, "interruption_id", id, "err", err)
		return in, &apperrors.Inconsistency{
			SessionID:      sessionID,
			InterruptionID: id,
			Err:            apperrors.Classify(op, err),
		}
	}
	return in, nil
}

// Repair retries the count increment left undone by a failed LogInterruption.
func (r *Recorder) Repair(ctx context.Context, inc *apperrors.Inconsistency) error {
	if err := r.sessions.IncrementInterruptionCount(ctx, inc.SessionID); err != nil {
		return apperrors.Classify("session.repair", err)
	}
	r.log.Info("interruption count repaired", "session_id", inc.SessionID, "interruption_id", inc.InterruptionID)
	return nil
}

// Get returns a session by id.
func (r *Recorder) Get(ctx context.Context, id int64) (model.Session, error) {
	sess, err := r.sessions.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, apperrors.Classify("session.get", err)
	}
	return sess, nil
}

// Interruptions lists the interruptions logged against a session.
func (r *Recorder) Interruptions(ctx context.Context, sessionID int64) ([]model.Interruption, error) {
	list, err := r.interruptions.ListInterruptions(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Classify("session.interruptions", err)
	}
	return list, nil
}

// Recent returns the latest sessions, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return r.History(ctx, model.HistoryFilter{Limit: limit})
}

// ForTask returns every session tracked against a task, newest first.
func (r *Recorder) ForTask(ctx context.Context, taskID int64) ([]model.Session, error) {
	return r.History(ctx, model.HistoryFilter{TaskID: &taskID})
}

// History lists sessions matching filter.
func (r *Recorder) History(ctx context.Context, filter model.HistoryFilter) ([]model.Session, error) {
	list, err := r.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, apperrors.Classify("session.history", err)
	}
	return list, nil
}

// Delete removes a session together with its interruptions.
func (r *Recorder) Delete(ctx context.Context, id int64) error {
	if err := r.sessions.DeleteSession(ctx, id); err != nil {
		return apperrors.Classify("session.delete", err)
	}
	return nil
}

// RoundedElapsed is the wall-clock time between start and now rounded to the
// nearest whole minute, in seconds. Negative spans count as zero.
func RoundedElapsed(start, now time.Time) int {
	elapsed := now.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	minutes := math.Round(elapsed.Minutes())
	return int(minutes) * 60
}

// IsNotFound reports whether err means the record vanished.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
