package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/wrangler/internal/apperrors"
	"github.com/verte-zerg/wrangler/internal/clock"
	"github.com/verte-zerg/wrangler/internal/model"
	"github.com/verte-zerg/wrangler/internal/session"
	"github.com/verte-zerg/wrangler/internal/store/storetest"
)

type manualScheduler struct {
	mu   sync.Mutex
	next int
	jobs map[int]func()
	last func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{jobs: map[int]func(){}}
}

func (s *manualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.jobs[id] = fn
	s.last = fn
	return func() {
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
	}
}

func (s *manualScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.jobs))
	for _, fn := range s.jobs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type harness struct {
	engine    *Engine
	mem       *storetest.Memory
	clock     *clock.Manual
	sched     *manualScheduler
	completed []model.TimerSnapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mem:   storetest.NewMemory(),
		clock: clock.NewManual(time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC)),
		sched: newManualScheduler(),
	}
	rec := session.NewRecorder(h.mem, h.mem, h.clock, nil)
	h.engine = New(rec, Options{
		Clock:     h.clock,
		Scheduler: h.sched,
		OnComplete: func(s model.TimerSnapshot) {
			h.completed = append(h.completed, s)
		},
	})
	return h
}

// advance moves the clock one second at a time, firing the scheduler each step.
func (h *harness) advance(d time.Duration) {
	for d >= time.Second {
		h.clock.Advance(time.Second)
		h.sched.fire()
		d -= time.Second
	}
	if d > 0 {
		h.clock.Advance(d)
		h.sched.fire()
	}
}

func (h *harness) session(t *testing.T, id int64) model.Session {
	t.Helper()
	sess, err := h.mem.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get session %d: %v", id, err)
	}
	return sess
}

func taskRef(id int64) *int64 {
	return &id
}

func TestStartSetsCountdown(t *testing.T) {
	for _, minutes := range []int{1, 10, 25, 90} {
		h := newHarness(t)
		snap, err := h.engine.Start(context.Background(), minutes, model.Focus, taskRef(1))
		if err != nil {
			t.Fatalf("start %d: %v", minutes, err)
		}
		if snap.State != model.Running || snap.TotalSeconds != minutes*60 || snap.RemainingSeconds != minutes*60 {
			t.Fatalf("start %d: unexpected snapshot %+v", minutes, snap)
		}
		if !snap.HasSession() || h.sched.active() != 1 {
			t.Fatalf("start %d: expected session and tick loop", minutes)
		}
	}
}

func TestStartFocusWithoutTaskIsRefused(t *testing.T) {
	h := newHarness(t)
	snap, err := h.engine.Start(context.Background(), 25, model.Focus, nil)
	if !errors.Is(err, apperrors.ErrPreconditionFailed) || !errors.Is(err, ErrNoTask) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if snap.State != model.Idle || snap.HasSession() {
		t.Fatalf("expected idle without session, got %+v", snap)
	}
	if h.mem.Calls(storetest.InsertSession) != 0 {
		t.Fatalf("expected no session write")
	}
}

func TestStartBreakWithoutTask(t *testing.T) {
	h := newHarness(t)
	snap, err := h.engine.Start(context.Background(), 10, model.Break, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sess := h.session(t, snap.SessionID)
	if sess.TaskID != nil || sess.Type != model.Break || sess.PlannedDurationSeconds != 600 {
		t.Fatalf("unexpected break session: %+v", sess)
	}
}

func TestStartStoreFailureKeepsIdle(t *testing.T) {
	h := newHarness(t)
	h.mem.Fail(storetest.InsertSession, errors.New("database is locked"))
	snap, err := h.engine.Start(context.Background(), 25, model.Focus, taskRef(1))
	if !errors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if snap.State != model.Idle || h.sched.active() != 0 {
		t.Fatalf("expected idle engine without ticks, got %+v", snap)
	}
}

func TestStartOnDeletedTaskIsPrecondition(t *testing.T) {
	h := newHarness(t)
	h.mem.Fail(storetest.InsertSession, fmt.Errorf("task 7: %w", apperrors.ErrNotFound))
	snap, err := h.engine.Start(context.Background(), 25, model.Focus, taskRef(7))
	if !errors.Is(err, apperrors.ErrPreconditionFailed) || !errors.Is(err, ErrTaskGone) {
		t.Fatalf("expected task gone precondition, got %v", err)
	}
	if snap.State != model.Idle || h.sched.active() != 0 {
		t.Fatalf("expected idle engine without ticks, got %+v", snap)
	}
}

func TestStartOnlyFromIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.Start(ctx, 5, model.Break, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.Start(ctx, 5, model.Break, nil); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if got := h.mem.Calls(storetest.InsertSession); got != 1 {
		t.Fatalf("expected one session, got %d", got)
	}
}

func TestTickCompletesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	snap, err := h.engine.Start(context.Background(), 1, model.Focus, taskRef(4))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(59 * time.Second)
	if got := h.engine.Snapshot(); got.State != model.Running || got.RemainingSeconds != 1 {
		t.Fatalf("expected 1s left, got %+v", got)
	}
	h.advance(5 * time.Second)
	h.engine.Tick()
	h.engine.Tick()

	got := h.engine.Snapshot()
	if got.State != model.Completed || got.RemainingSeconds != 0 {
		t.Fatalf("expected completed, got %+v", got)
	}
	if len(h.completed) != 1 {
		t.Fatalf("expected one completion, got %d", len(h.completed))
	}
	if h.sched.active() != 0 {
		t.Fatalf("expected tick loop cancelled")
	}
	sess := h.session(t, snap.SessionID)
	if !sess.Closed() || *sess.ActualDurationSeconds != 60 {
		t.Fatalf("expected session closed with 60s, got %+v", sess)
	}
}

func TestTickCatchesUpAfterGap(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Start(context.Background(), 25, model.Focus, taskRef(1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(10 * time.Minute)
	h.engine.Tick()
	if got := h.engine.Snapshot().RemainingSeconds; got != 900 {
		t.Fatalf("expected 900s left, got %d", got)
	}
	h.clock.Advance(time.Hour)
	h.engine.Tick()
	if got := h.engine.Snapshot(); got.State != model.Completed || got.RemainingSeconds != 0 {
		t.Fatalf("expected clamp to zero, got %+v", got)
	}
}

func TestTickKeepsSubSecondRemainder(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Start(context.Background(), 1, model.Break, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(700 * time.Millisecond)
	h.engine.Tick()
	if got := h.engine.Snapshot().RemainingSeconds; got != 60 {
		t.Fatalf("expected no change before a full second, got %d", got)
	}
	h.clock.Advance(700 * time.Millisecond)
	h.engine.Tick()
	h.clock.Advance(700 * time.Millisecond)
	h.engine.Tick()
	if got := h.engine.Snapshot().RemainingSeconds; got != 58 {
		t.Fatalf("expected 58s after 2.1s, got %d", got)
	}
}

func TestPauseResumeExcludesPausedTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.Start(ctx, 25, model.Focus, taskRef(1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(30 * time.Second)
	before, err := h.engine.Pause()
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if before.State != model.Paused || h.sched.active() != 0 {
		t.Fatalf("expected paused without ticks, got %+v", before)
	}
	h.clock.Advance(7 * time.Minute)
	h.engine.Tick()
	after, err := h.engine.Resume()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if after.RemainingSeconds != before.RemainingSeconds || after.State != model.Running {
		t.Fatalf("expected %d remaining, got %+v", before.RemainingSeconds, after)
	}
	h.engine.Tick()
	if got := h.engine.Snapshot().RemainingSeconds; got != before.RemainingSeconds {
		t.Fatalf("paused time leaked into countdown: %d", got)
	}
}

func TestPauseResumeRequireMatchingState(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Pause(); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state on idle pause, got %v", err)
	}
	if _, err := h.engine.Start(context.Background(), 5, model.Break, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.Resume(); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state on running resume, got %v", err)
	}
}

func TestStaleTickAfterPauseIsDropped(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Start(context.Background(), 25, model.Focus, taskRef(1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	stale := h.sched.last
	if _, err := h.engine.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := h.engine.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	stale()
	if got := h.engine.Snapshot().RemainingSeconds; got != 1500 {
		t.Fatalf("stale tick mutated state: %d", got)
	}
	h.sched.fire()
	if got := h.engine.Snapshot().RemainingSeconds; got != 1497 {
		t.Fatalf("expected live tick to apply, got %d", got)
	}
}

func TestStopRecordsRoundedElapsed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 25, model.Focus, taskRef(2))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(60 * time.Second)
	if _, err := h.engine.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.clock.Advance(65 * time.Second)

	idle, err := h.engine.Stop(ctx, true)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if idle.State != model.Idle || idle.HasSession() {
		t.Fatalf("expected idle without session, got %+v", idle)
	}
	sess := h.session(t, snap.SessionID)
	if *sess.ActualDurationSeconds != 120 {
		t.Fatalf("expected 120s including pause, got %d", *sess.ActualDurationSeconds)
	}
}

func TestImmediateStopPersistsZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 25, model.Focus, taskRef(2))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.Stop(ctx, true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	sess := h.session(t, snap.SessionID)
	if !sess.Closed() || *sess.ActualDurationSeconds != 0 {
		t.Fatalf("expected closed session with 0s, got %+v", sess)
	}
}

func TestStopAfterCompletionKeepsRecordedDuration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 1, model.Break, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(time.Minute)
	h.clock.Advance(10 * time.Minute)
	if _, err := h.engine.Stop(ctx, true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := h.mem.Calls(storetest.FinishSession); got != 1 {
		t.Fatalf("expected one finalize, got %d", got)
	}
	if sess := h.session(t, snap.SessionID); *sess.ActualDurationSeconds != 60 {
		t.Fatalf("expected 60s, got %d", *sess.ActualDurationSeconds)
	}
}

func TestStopToleratesMissingSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 25, model.Focus, taskRef(1))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.mem.RemoveSession(snap.SessionID)

	idle, err := h.engine.Stop(ctx, true)
	if !apperrors.IsWarning(err) || !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found warning, got %v", err)
	}
	if idle.State != model.Idle {
		t.Fatalf("expected idle, got %+v", idle)
	}
}

func TestCompletionStoreFailureRetriedOnStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 1, model.Focus, taskRef(1))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.mem.Fail(storetest.FinishSession, errors.New("disk I/O error"))
	h.advance(time.Minute)
	if got := h.engine.Snapshot(); got.State != model.Completed {
		t.Fatalf("expected completed despite store failure, got %+v", got)
	}
	h.mem.Fail(storetest.FinishSession, nil)
	h.clock.Advance(3 * time.Minute)
	if _, err := h.engine.Stop(ctx, false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sess := h.session(t, snap.SessionID); *sess.ActualDurationSeconds != 60 {
		t.Fatalf("expected completion duration 60s, got %d", *sess.ActualDurationSeconds)
	}
}

func TestStopFromIdleIsInvalid(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Stop(context.Background(), true); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestClassicScenarioWithExtension(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	classic := DefaultPreset()

	snap, err := h.engine.Start(ctx, classic.Focus, model.Focus, taskRef(7))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sess := h.session(t, snap.SessionID)
	if *sess.TaskID != 7 || sess.Type != model.Focus || sess.PlannedDurationSeconds != 1500 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if snap.RemainingSeconds != 1500 {
		t.Fatalf("expected 1500s, got %d", snap.RemainingSeconds)
	}

	if _, err := h.engine.LogInterruption(ctx, model.Notification, ""); err != nil {
		t.Fatalf("interruption: %v", err)
	}
	if got := h.session(t, snap.SessionID).InterruptionCount; got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}

	h.clock.Advance(1500 * time.Second)
	h.engine.Tick()
	done := h.engine.Snapshot()
	if done.State != model.Completed || done.RemainingSeconds != 0 {
		t.Fatalf("expected completed, got %+v", done)
	}
	if got := *h.session(t, snap.SessionID).ActualDurationSeconds; got != 1500 {
		t.Fatalf("expected actual 1500, got %d", got)
	}

	ext, err := h.engine.Extend(5)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if ext.State != model.Running || ext.RemainingSeconds != 300 || ext.TotalSeconds != 1800 || ext.SessionID != snap.SessionID {
		t.Fatalf("unexpected extended snapshot: %+v", ext)
	}
	if got := h.mem.Calls(storetest.InsertSession); got != 1 {
		t.Fatalf("extension created a session: %d inserts", got)
	}

	h.advance(300 * time.Second)
	if got := *h.session(t, snap.SessionID).ActualDurationSeconds; got != 1800 {
		t.Fatalf("expected actual 1800 after extension, got %d", got)
	}
	if len(h.completed) != 2 {
		t.Fatalf("expected two completions, got %d", len(h.completed))
	}
}

func TestStopAfterExtensionRestampsEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 1, model.Break, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(time.Minute)
	first := h.session(t, snap.SessionID)
	if first.EndedAt == nil || *first.ActualDurationSeconds != 60 {
		t.Fatalf("expected closed after completion, got %+v", first)
	}

	if _, err := h.engine.Extend(5); err != nil {
		t.Fatalf("extend: %v", err)
	}
	h.advance(20 * time.Second)
	if _, err := h.engine.Stop(ctx, true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	sess := h.session(t, snap.SessionID)
	if *sess.ActualDurationSeconds != 60 {
		t.Fatalf("expected rounded 60s, got %d", *sess.ActualDurationSeconds)
	}
	if !sess.EndedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected end at stop time %s, got %s", h.clock.Now(), sess.EndedAt)
	}
}

func TestExtendRequiresExhaustedTimer(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Extend(5); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state from idle, got %v", err)
	}
	if _, err := h.engine.Start(context.Background(), 5, model.Break, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.Extend(5); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state while running, got %v", err)
	}
}

func TestLogInterruptionCountsEveryCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 25, model.Focus, taskRef(1))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, cat := range model.InterruptionCategories {
		if i == 2 {
			if _, err := h.engine.Pause(); err != nil {
				t.Fatalf("pause: %v", err)
			}
		}
		if _, err := h.engine.LogInterruption(ctx, cat, ""); err != nil {
			t.Fatalf("log %s: %v", cat, err)
		}
	}
	n := len(model.InterruptionCategories)
	list, _ := h.mem.ListInterruptions(ctx, snap.SessionID)
	if got := h.session(t, snap.SessionID).InterruptionCount; got != n || len(list) != n {
		t.Fatalf("expected %d, count=%d records=%d", n, got, len(list))
	}
	if got := h.engine.Snapshot().Interruptions; got != n {
		t.Fatalf("expected snapshot count %d, got %d", n, got)
	}
}

func TestLogInterruptionWithoutOpenSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.LogInterruption(ctx, model.Bored, ""); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := h.engine.Start(ctx, 1, model.Break, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(time.Minute)
	if _, err := h.engine.LogInterruption(ctx, model.Bored, ""); !errors.Is(err, ErrNoOpenSession) {
		t.Fatalf("expected refusal after completion, got %v", err)
	}
	if h.mem.Calls(storetest.InsertInterruption) != 0 {
		t.Fatalf("expected no interruption writes")
	}
}

func TestInterruptionInconsistencyRepairedOnStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.engine.Start(ctx, 25, model.Focus, taskRef(1))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.mem.Fail(storetest.IncrementInterruptionCount, errors.New("database is locked"))
	_, err = h.engine.LogInterruption(ctx, model.Urgent, "pager")
	var inc *apperrors.Inconsistency
	if !apperrors.IsWarning(err) || !errors.As(err, &inc) {
		t.Fatalf("expected inconsistency warning, got %v", err)
	}
	if len(h.engine.Pending()) != 1 {
		t.Fatalf("expected one pending repair")
	}
	if got := h.engine.Snapshot(); got.State != model.Running {
		t.Fatalf("expected timer untouched, got %+v", got)
	}

	h.mem.Fail(storetest.IncrementInterruptionCount, nil)
	if _, err := h.engine.Stop(ctx, true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := h.session(t, snap.SessionID).InterruptionCount; got != 1 {
		t.Fatalf("expected repaired count 1, got %d", got)
	}
	if len(h.engine.Pending()) != 0 {
		t.Fatalf("expected no pending repairs")
	}
}

func TestSwitchPreparesOppositeType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.Switch(ctx); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := h.engine.Start(ctx, 1, model.Focus, taskRef(1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(time.Minute)
	next, err := h.engine.Switch(ctx)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	snap := h.engine.Snapshot()
	if next != model.Break || snap.Type != model.Break || snap.State != model.Idle {
		t.Fatalf("expected idle break, got %s %+v", next, snap)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	events, unsubscribe := h.engine.Subscribe(64)

	if _, err := h.engine.Start(ctx, 1, model.Break, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(2 * time.Second)
	if _, err := h.engine.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	unsubscribe()
	unsubscribe()

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	wantTypes := []EventType{EventStateChange, EventProgress, EventProgress, EventStateChange}
	if len(got) != len(wantTypes) {
		t.Fatalf("expected %d events, got %+v", len(wantTypes), got)
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, got[i].Type)
		}
	}
	if got[2].Snapshot.RemainingSeconds != 58 || got[3].Snapshot.State != model.Paused {
		t.Fatalf("unexpected snapshots: %+v", got)
	}

	if _, err := h.engine.Resume(); err != nil {
		t.Fatalf("resume after unsubscribe: %v", err)
	}
}

func TestFullBufferStillDeliversCompletion(t *testing.T) {
	h := newHarness(t)
	events, unsubscribe := h.engine.Subscribe(2)

	if _, err := h.engine.Start(context.Background(), 1, model.Break, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.advance(time.Minute)
	unsubscribe()

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("expected a full buffer of 2, got %+v", got)
	}
	if got[0].Type != EventStateChange || got[1].Type != EventCompleted {
		t.Fatalf("expected state then completed, got %s, %s", got[0].Type, got[1].Type)
	}
	if got[1].Snapshot.State != model.Completed {
		t.Fatalf("unexpected completion snapshot: %+v", got[1].Snapshot)
	}
}

func TestTickerSchedulerCancel(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	cancel := TickerScheduler{}.Every(time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	cancel()
	mu.Lock()
	n := calls
	mu.Unlock()
	if n == 0 {
		t.Fatalf("expected ticker to fire")
	}
}

func TestPresets(t *testing.T) {
	if p := DefaultPreset(); p.Focus != 25 || p.Break != 5 {
		t.Fatalf("unexpected default preset: %+v", p)
	}
	if _, ok := PresetByID("deep"); !ok {
		t.Fatalf("expected deep preset")
	}
	if _, ok := PresetByID("marathon"); ok {
		t.Fatalf("unexpected preset")
	}
	if next := NextPreset("deep"); next.ID != "short-sprint" {
		t.Fatalf("expected wrap to short-sprint, got %s", next.ID)
	}
	if p := DefaultPreset(); p.Minutes(model.Break) != 5 {
		t.Fatalf("expected 5 minute break")
	}
}
