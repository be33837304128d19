// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SessionType distinguishes focus intervals from breaks.
type SessionType string

const (
	Focus SessionType = "focus"
	Break SessionType = "break"
)

// ParseSessionType accepts "focus" or "break" in any case.
func ParseSessionType(s string) (SessionType, error) {
	switch SessionType(strings.ToLower(strings.TrimSpace(s))) {
	case Focus:
		return Focus, nil
	case Break:
		return Break, nil
	}
	return "", fmt.Errorf("unknown session type %q", s)
}

// Opposite returns the other session type.
func (t SessionType) Opposite() SessionType {
	if t == Focus {
		return Break
	}
	return Focus
}

// Title is the display form of the type.
func (t SessionType) Title() string {
	if t == Break {
		return "Break"
	}
	return "Focus"
}

// TimerState is the state of the single active timer.
type TimerState string

const (
	Idle      TimerState = "idle"
	Running   TimerState = "running"
	Paused    TimerState = "paused"
	Completed TimerState = "completed"
)

// TimerSnapshot is the in-memory view of the timer.
type TimerSnapshot struct {
	State            TimerState
	Type             SessionType
	TotalSeconds     int
	RemainingSeconds int
	// SessionID is zero when no session is open.
	SessionID int64
	TaskID    *int64
	// Interruptions counts interruptions stored for the open session.
	Interruptions int
}

// HasSession reports whether a session is linked to the timer.
func (s TimerSnapshot) HasSession() bool {
	return s.SessionID != 0
}

// Session is a persisted focus or break interval.
type Session struct {
	ID                     int64
	TaskID                 *int64
	Type                   SessionType
	PlannedDurationSeconds int
	ActualDurationSeconds  *int
	StartedAt              time.Time
	EndedAt                *time.Time
	InterruptionCount      int
}

// Closed reports whether the session has been finalized.
func (s Session) Closed() bool {
	return s.EndedAt != nil
}

// InterruptionCategory classifies a distraction.
type InterruptionCategory string

const (
	Thought      InterruptionCategory = "thought"
	Notification InterruptionCategory = "notification"
	Person       InterruptionCategory = "person"
	Urgent       InterruptionCategory = "urgent"
	Bored        InterruptionCategory = "bored"
)

// InterruptionCategories lists the categories in display order.
var InterruptionCategories = []InterruptionCategory{Thought, Notification, Person, Urgent, Bored}

// ParseInterruptionCategory validates a category name.
func ParseInterruptionCategory(s string) (InterruptionCategory, error) {
	c := InterruptionCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range InterruptionCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown interruption category %q", s)
}

// Interruption is a logged distraction during an open session.
type Interruption struct {
	ID        int64
	SessionID int64
	Category  InterruptionCategory
	Note      string
	Timestamp time.Time
}

// TaskStatus is the board column of a task.
type TaskStatus string

const (
	Inbox TaskStatus = "inbox"
	Today TaskStatus = "today"
	Doing TaskStatus = "doing"
	Done  TaskStatus = "done"
)

// TaskStatuses lists the board columns in order.
var TaskStatuses = []TaskStatus{Inbox, Today, Doing, Done}

// ParseTaskStatus validates a status name.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TaskStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// TaskEffort is a rough size estimate.
type TaskEffort string

const (
	EffortLow    TaskEffort = "low"
	EffortMedium TaskEffort = "medium"
	EffortHigh   TaskEffort = "high"
)

// ParseTaskEffort validates an effort name. Empty input means no effort.
func ParseTaskEffort(s string) (TaskEffort, error) {
	switch e := TaskEffort(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EffortLow, EffortMedium, EffortHigh:
		return e, nil
	case "med":
		return EffortMedium, nil
	}
	return "", fmt.Errorf("unknown effort %q", s)
}

// Task is an item on the board.
type Task struct {
	ID                 int64
	Title              string
	Notes              string
	Status             TaskStatus
	Effort             TaskEffort
	EstimatedPomodoros *int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// TaskUpdate is a partial update. Nil fields are left unchanged.
type TaskUpdate struct {
	Title              *string
	Notes              *string
	Status             *TaskStatus
	Effort             *TaskEffort
	EstimatedPomodoros *int
	CompletedAt        *time.Time
	UpdatedAt          *time.Time
}

// Preset pairs a focus length with a break length, in minutes.
type Preset struct {
	ID          string
	Name        string
	Focus       int
	Break       int
	Description string
}

// Minutes returns the preset length for the given session type.
func (p Preset) Minutes(t SessionType) int {
	if t == Break {
		return p.Break
	}
	return p.Focus
}

// HistoryFilter selects sessions for listing.
type HistoryFilter struct {
	TaskID *int64
	Since  *time.Time
	Limit  int
}
