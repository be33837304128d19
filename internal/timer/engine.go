// Package timer implements the single active focus/break countdown and links
// it to persisted sessions.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/verte-zerg/wrangler/internal/apperrors"
	"github.com/verte-zerg/wrangler/internal/clock"
	"github.com/verte-zerg/wrangler/internal/model"
	"github.com/verte-zerg/wrangler/internal/session"
)

// DefaultTickInterval is how often a running timer re-reads the clock.
const DefaultTickInterval = 250 * time.Millisecond

var (
	// ErrNoTask is the cause of a refused focus start without a task.
	ErrNoTask = errors.New("no task selected")
	// ErrNoOpenSession is returned when an interruption has nothing to attach to.
	ErrNoOpenSession = errors.New("no open session")
	// ErrTaskGone is the cause of a refused focus start on a deleted task.
	ErrTaskGone = errors.New("task no longer exists")
)

// Recorder persists the sessions the engine opens and closes.
type Recorder interface {
	Open(ctx context.Context, taskID *int64, typ model.SessionType, plannedSeconds int) (model.Session, error)
	Close(ctx context.Context, id int64, actualSeconds int) error
	LogInterruption(ctx context.Context, sessionID int64, category model.InterruptionCategory, note string) (model.Interruption, error)
	Repair(ctx context.Context, inc *apperrors.Inconsistency) error
}

// EventType identifies what changed.
type EventType string

const (
	EventStateChange  EventType = "state"
	EventProgress     EventType = "progress"
	EventCompleted    EventType = "completed"
	EventInterruption EventType = "interruption"
	EventWarning      EventType = "warning"
)

// Event is pushed to subscribers after every state or remaining-time change.
type Event struct {
	Type     EventType
	Snapshot model.TimerSnapshot
	// Err is set on EventWarning and is always an *apperrors.Warning.
	Err error
	At  time.Time
}

// Options configures an Engine. Zero values pick defaults.
type Options struct {
	TickInterval time.Duration
	Clock        clock.Clock
	Scheduler    Scheduler
	Logger       hclog.Logger
	// OnComplete runs after the countdown reaches zero, outside the engine lock.
	OnComplete func(model.TimerSnapshot)
}

// Engine is the timer state machine. All methods are safe for concurrent use;
// operations are serialized, store calls included.
type Engine struct {
	mu         sync.Mutex
	recorder   Recorder
	clock      clock.Clock
	scheduler  Scheduler
	interval   time.Duration
	log        hclog.Logger
	onComplete func(model.TimerSnapshot)

	state         model.TimerState
	typ           model.SessionType
	total         int
	remaining     int
	sessionID     int64
	taskID        *int64
	startedAt     time.Time
	lastTick      time.Time
	closed        bool
	interruptions int
	pending       []*apperrors.Inconsistency

	cancelTick func()
	generation uint64
	events     []chan Event
}

// New creates an idle engine.
func New(recorder Recorder, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Engine{
		recorder:   recorder,
		clock:      opts.Clock,
		scheduler:  opts.Scheduler,
		interval:   opts.TickInterval,
		log:        opts.Logger.Named("timer"),
		onComplete: opts.OnComplete,
		state:      model.Idle,
		typ:        model.Focus,
	}
}

// Snapshot returns the current timer view.
func (e *Engine) Snapshot() model.TimerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers an observer channel. A subscriber whose buffer is full
// loses progress events first; state, completion and warning events are kept. The returned func unregisters and closes
// the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	e.mu.Lock()
	e.events = append(e.events, ch)
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, c := range e.events {
				if c == ch {
					e.events = append(e.events[:i], e.events[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

// Shutdown cancels the tick loop and closes every subscriber. An open session
// is left as is.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	for _, ch := range e.events {
		close(ch)
	}
	e.events = nil
}

// Start opens a session and begins counting down from minutes. Focus timers
// need a task. The session is stored before the timer runs; if that fails the
// engine stays idle.
func (e *Engine) Start(ctx context.Context, minutes int, typ model.SessionType, taskID *int64) (model.TimerSnapshot, error) {
	const op = "timer.start"
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != model.Idle {
		return e.snapshotLocked(), e.invalidStateLocked(op)
	}
	if minutes <= 0 {
		return e.snapshotLocked(), apperrors.New(apperrors.ErrInvalidInput, op, fmt.Errorf("duration %d minutes", minutes))
	}
	if typ == model.Focus && taskID == nil {
		return e.snapshotLocked(), apperrors.New(apperrors.ErrPreconditionFailed, op, ErrNoTask)
	}

	seconds := minutes * 60
	sess, err := e.recorder.Open(ctx, taskID, typ, seconds)
	if err != nil {
		if taskID != nil && errors.Is(err, apperrors.ErrNotFound) {
			e.log.Warn("task vanished before start", "op", op, "task_id", *taskID)
			return e.snapshotLocked(), apperrors.New(apperrors.ErrPreconditionFailed, op, fmt.Errorf("%w: %w", ErrTaskGone, err))
		}
		e.log.Error("session not opened, timer stays idle", "op", op, "type", typ, "err", err)
		return e.snapshotLocked(), err
	}

	e.state = model.Running
	e.typ = typ
	e.total = seconds
	e.remaining = seconds
	e.sessionID = sess.ID
	e.taskID = sess.TaskID
	e.startedAt = sess.StartedAt
	e.lastTick = e.clock.Now()
	e.closed = false
	e.interruptions = 0
	e.scheduleLocked()
	e.log.Info("timer started", "session_id", sess.ID, "type", typ, "minutes", minutes)
	e.emitLocked(EventStateChange, nil)
	return e.snapshotLocked(), nil
}

// Pause freezes the countdown.
func (e *Engine) Pause() (model.TimerSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.Running {
		return e.snapshotLocked(), e.invalidStateLocked("timer.pause")
	}
	e.cancelLocked()
	e.state = model.Paused
	e.emitLocked(EventStateChange, nil)
	return e.snapshotLocked(), nil
}

// Resume continues a paused countdown. Time spent paused is not counted.
func (e *Engine) Resume() (model.TimerSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.Paused {
		return e.snapshotLocked(), e.invalidStateLocked("timer.resume")
	}
	e.state = model.Running
	e.lastTick = e.clock.Now()
	e.scheduleLocked()
	e.emitLocked(EventStateChange, nil)
	return e.snapshotLocked(), nil
}

// Tick applies the whole seconds elapsed since the previous tick. It is a
// no-op unless the timer is running.
func (e *Engine) Tick() {
	e.tick(0)
}

func (e *Engine) tick(generation uint64) {
	e.mu.Lock()
	if generation != 0 && generation != e.generation {
		e.mu.Unlock()
		return
	}
	if e.state != model.Running {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	if now.Before(e.lastTick) {
		e.lastTick = now
	}
	elapsed := int(now.Sub(e.lastTick) / time.Second)
	if elapsed <= 0 {
		e.mu.Unlock()
		return
	}
	// Keep the sub-second remainder so jittery callbacks do not drift.
	e.lastTick = e.lastTick.Add(time.Duration(elapsed) * time.Second)
	e.remaining -= elapsed
	if e.remaining > 0 {
		e.emitLocked(EventProgress, nil)
		e.mu.Unlock()
		return
	}

	e.completeLocked(context.Background())
	snap := e.snapshotLocked()
	onComplete := e.onComplete
	e.mu.Unlock()

	if onComplete != nil {
		onComplete(snap)
	}
}

func (e *Engine) completeLocked(ctx context.Context) {
	const op = "timer.complete"
	e.cancelLocked()
	e.state = model.Completed
	e.remaining = 0
	e.log.Info("timer completed", "session_id", e.sessionID, "type", e.typ, "total_s", e.total)
	e.emitLocked(EventCompleted, nil)
	if err := e.closeSessionLocked(ctx, op, e.total); err != nil {
		e.warnLocked(op, err)
	}
}

// Stop ends the timer from any non-idle state and records the wall-clock time
// since the session started, rounded to whole minutes, pauses included.
// manual distinguishes a user cancel from a programmatic stop in logs.
// The returned error, when non-nil after a completed transition, is an
// *apperrors.Warning.
func (e *Engine) Stop(ctx context.Context, manual bool) (model.TimerSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == model.Idle {
		return e.snapshotLocked(), e.invalidStateLocked("timer.stop")
	}
	warn := e.stopLocked(ctx, manual)
	return e.snapshotLocked(), warn
}

func (e *Engine) stopLocked(ctx context.Context, manual bool) error {
	const op = "timer.stop"
	e.cancelLocked()

	var warn error
	if e.sessionID != 0 && !e.closed {
		actual := session.RoundedElapsed(e.startedAt, e.clock.Now())
		if e.state == model.Completed {
			// Completion already fixed the duration; only its write failed.
			actual = e.total
		}
		if err := e.closeSessionLocked(ctx, op, actual); err != nil {
			warn = e.warnLocked(op, err)
		}
	}
	e.log.Info("timer stopped", "session_id", e.sessionID, "manual", manual, "from", e.state)

	e.state = model.Idle
	e.total = 0
	e.remaining = 0
	e.sessionID = 0
	e.taskID = nil
	e.startedAt = time.Time{}
	e.closed = false
	e.interruptions = 0
	e.emitLocked(EventStateChange, nil)
	return warn
}

// Extend adds minutes to an exhausted timer and runs it again under the same
// session. The session is finalized again when the extension ends.
func (e *Engine) Extend(minutes int) (model.TimerSnapshot, error) {
	const op = "timer.extend"
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.Completed || e.remaining != 0 {
		return e.snapshotLocked(), e.invalidStateLocked(op)
	}
	if minutes <= 0 {
		return e.snapshotLocked(), apperrors.New(apperrors.ErrInvalidInput, op, fmt.Errorf("extension %d minutes", minutes))
	}
	add := minutes * 60
	e.total += add
	e.remaining += add
	e.state = model.Running
	e.closed = false
	e.lastTick = e.clock.Now()
	e.scheduleLocked()
	e.log.Info("timer extended", "session_id", e.sessionID, "minutes", minutes)
	e.emitLocked(EventStateChange, nil)
	return e.snapshotLocked(), nil
}

// Switch stops a completed timer and returns the opposite session type, which
// the caller should start next.
func (e *Engine) Switch(ctx context.Context) (model.SessionType, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.Completed {
		return e.typ, e.invalidStateLocked("timer.switch")
	}
	next := e.typ.Opposite()
	warn := e.stopLocked(ctx, false)
	e.typ = next
	e.emitLocked(EventStateChange, nil)
	return next, warn
}

// SetType selects the session type shown while idle.
func (e *Engine) SetType(typ model.SessionType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.Idle {
		return e.invalidStateLocked("timer.set_type")
	}
	if e.typ != typ {
		e.typ = typ
		e.emitLocked(EventStateChange, nil)
	}
	return nil
}

// LogInterruption records a distraction against the open session. Store
// failures leave the timer untouched and come back as *apperrors.Warning.
func (e *Engine) LogInterruption(ctx context.Context, category model.InterruptionCategory, note string) (model.Interruption, error) {
	const op = "timer.interruption"
	e.mu.Lock()
	defer e.mu.Unlock()
	if (e.state != model.Running && e.state != model.Paused) || e.sessionID == 0 {
		return model.Interruption{}, apperrors.New(apperrors.ErrInvalidState, op, ErrNoOpenSession)
	}

	in, err := e.recorder.LogInterruption(ctx, e.sessionID, category, note)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return in, err
		}
		var inc *apperrors.Inconsistency
		if errors.As(err, &inc) {
			e.pending = append(e.pending, inc)
			e.interruptions++
			e.emitLocked(EventInterruption, nil)
		}
		return in, e.warnLocked(op, err)
	}
	e.interruptions++
	e.emitLocked(EventInterruption, nil)
	return in, nil
}

// Pending returns interruptions whose count increment is still outstanding.
func (e *Engine) Pending() []*apperrors.Inconsistency {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*apperrors.Inconsistency(nil), e.pending...)
}

// closeSessionLocked retries outstanding repairs, then finalizes the session.
func (e *Engine) closeSessionLocked(ctx context.Context, op string, actual int) error {
	e.repairLocked(ctx)
	if err := e.recorder.Close(ctx, e.sessionID, actual); err != nil {
		if session.IsNotFound(err) {
			// The record is gone; there is nothing left to retry.
			e.closed = true
		}
		return err
	}
	e.closed = true
	e.log.Debug("session finalized", "op", op, "session_id", e.sessionID, "actual_s", actual)
	return nil
}

func (e *Engine) repairLocked(ctx context.Context) {
	if len(e.pending) == 0 {
		return
	}
	left := e.pending[:0]
	for _, inc := range e.pending {
		if err := e.recorder.Repair(ctx, inc); err != nil {
			if session.IsNotFound(err) {
				continue
			}
			e.log.Warn("repair failed", "session_id", inc.SessionID, "interruption_id", inc.InterruptionID, "err", err)
			left = append(left, inc)
		}
	}
	e.pending = left
}

func (e *Engine) warnLocked(op string, err error) error {
	e.log.Warn("store call failed", "op", op, "session_id", e.sessionID, "err", err)
	warn := apperrors.Warn(err)
	e.emitLocked(EventWarning, warn)
	return warn
}

func (e *Engine) invalidStateLocked(op string) error {
	return apperrors.New(apperrors.ErrInvalidState, op, fmt.Errorf("timer is %s", e.state))
}

func (e *Engine) scheduleLocked() {
	e.cancelLocked()
	gen := e.generation
	e.cancelTick = e.scheduler.Every(e.interval, func() { e.tick(gen) })
}

// cancelLocked stops the recurring tick. Bumping the generation makes any
// callback already waiting on the lock a no-op.
func (e *Engine) cancelLocked() {
	if e.cancelTick != nil {
		e.cancelTick()
		e.cancelTick = nil
	}
	e.generation++
}

func (e *Engine) snapshotLocked() model.TimerSnapshot {
	snap := model.TimerSnapshot{
		State:            e.state,
		Type:             e.typ,
		TotalSeconds:     e.total,
		RemainingSeconds: e.remaining,
		SessionID:        e.sessionID,
		Interruptions:    e.interruptions,
	}
	if e.taskID != nil {
		id := *e.taskID
		snap.TaskID = &id
	}
	return snap
}

func (e *Engine) emitLocked(typ EventType, err error) {
	event := Event{
		Type:     typ,
		Snapshot: e.snapshotLocked(),
		Err:      err,
		At:       e.clock.Now(),
	}
	for _, ch := range e.events {
		deliver(ch, event)
	}
}

// deliver never blocks. Only the engine sends, under its lock, so the slots
// freed by draining stay free until the refill.
func deliver(ch chan Event, event Event) {
	select {
	case ch <- event:
		return
	default:
	}
	if event.Type == EventProgress {
		return
	}
	kept := make([]Event, 0, cap(ch)+1)
	for drained := false; !drained; {
		select {
		case old := <-ch:
			if old.Type != EventProgress {
				kept = append(kept, old)
			}
		default:
			drained = true
		}
	}
	kept = append(kept, event)
	if over := len(kept) - cap(ch); over > 0 {
		kept = kept[over:]
	}
	for _, ev := range kept {
		select {
		case ch <- ev:
		default:
		}
	}
}
