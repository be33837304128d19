// Package tui provides the Bubble Tea timer and task board interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/go-hclog"

	"github.com/verte-zerg/wrangler/internal/apperrors"
	"github.com/verte-zerg/wrangler/internal/model"
	"github.com/verte-zerg/wrangler/internal/notify"
	"github.com/verte-zerg/wrangler/internal/session"
	"github.com/verte-zerg/wrangler/internal/tasks"
	"github.com/verte-zerg/wrangler/internal/timer"
)

const (
	tabTimer = iota
	tabTasks
	tabHistory
)

const historyLimit = 50

type inputMode int

const (
	inputNone inputMode = iota
	inputTask
	inputNote
)

type eventMsg timer.Event

type storeChangedMsg struct{}

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	clockStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	focusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	breakStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAF87")).Bold(true)
	pendingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	noticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// Deps are the services the UI drives.
type Deps struct {
	Engine   *timer.Engine
	Tasks    *tasks.Service
	Sessions *session.Recorder
	Notifier *notify.Notifier
	// Changes fires after store writes; nil disables live refresh.
	Changes <-chan struct{}
	Logger  hclog.Logger
}

// Options are the user-tunable timer settings.
type Options struct {
	Preset      model.Preset
	ExtendShort int
	ExtendLong  int
	AutoSwitch  bool
}

// Model implements the Bubble Tea UI.
type Model struct {
	engine   *timer.Engine
	tasks    *tasks.Service
	sessions *session.Recorder
	notifier *notify.Notifier
	events   <-chan timer.Event
	cancel   func()
	changes  <-chan struct{}
	log      hclog.Logger
	opts     Options

	snap     model.TimerSnapshot
	nowTask  *model.Task
	taskList []model.Task
	titles   map[int64]string

	tabs        []string
	activeTab   int
	taskTable   table.Model
	historyView viewport.Model

	mode         inputMode
	input        textinput.Model
	noteCategory int

	status    string
	statusErr bool

	width  int
	height int
}

// NewModel constructs the UI and subscribes to the engine.
func NewModel(deps Deps, opts Options) *Model {
	if opts.Preset.ID == "" {
		opts.Preset = timer.DefaultPreset()
	}
	if opts.ExtendShort <= 0 {
		opts.ExtendShort = 5
	}
	if opts.ExtendLong <= 0 {
		opts.ExtendLong = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	events, cancel := deps.Engine.Subscribe(64)
	m := &Model{
		engine:      deps.Engine,
		tasks:       deps.Tasks,
		sessions:    deps.Sessions,
		notifier:    deps.Notifier,
		events:      events,
		cancel:      cancel,
		changes:     deps.Changes,
		log:         logger.Named("tui"),
		opts:        opts,
		tabs:        []string{"Timer", "Tasks", "History"},
		taskTable:   buildTaskTable(nil, nil, 0, 1),
		historyView: viewport.New(0, 0),
		titles:      map[int64]string{},
	}
	if m.notifier == nil {
		m.notifier = notify.New("", false, nil)
	}
	m.input = textinput.New()
	m.input.CharLimit = 200
	m.input.Cursor.SetMode(cursor.CursorBlink)
	m.snap = m.engine.Snapshot()
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), waitForChange(m.changes))
}

func waitForEvent(ch <-chan timer.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil
	case eventMsg:
		m.handleEvent(timer.Event(msg))
		return m, waitForEvent(m.events)
	case storeChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, m.quit()
		}
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "q":
			return m, m.quit()
		case "tab", "right":
			m.moveTab(1)
			return m, nil
		case "shift+tab", "left":
			m.moveTab(-1)
			return m, nil
		}
		switch m.activeTab {
		case tabTimer:
			return m.updateTimerKeys(msg)
		case tabTasks:
			return m.updateTaskKeys(msg)
		default:
			var cmd tea.Cmd
			m.historyView, cmd = m.historyView.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.mode != inputNone {
		return m.renderInputModal()
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderTabs(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) handleEvent(ev timer.Event) {
	m.snap = ev.Snapshot
	switch ev.Type {
	case timer.EventCompleted:
		msg := m.notifier.Notify(ev.Snapshot, m.taskTitle(ev.Snapshot.TaskID))
		m.setStatus(msg, false)
		if m.opts.AutoSwitch {
			m.switchMode()
			if !m.statusErr {
				m.status = msg + "  " + m.status
			}
		}
		m.renderHistory()
	case timer.EventWarning:
		if ev.Err != nil {
			m.setStatus(ev.Err.Error(), true)
		}
	case timer.EventStateChange:
		if ev.Snapshot.State == model.Idle {
			m.renderHistory()
		}
	}
}

func (m *Model) updateTimerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	key := msg.String()
	if msg.Type == tea.KeySpace {
		key = " "
	}
	switch key {
	case " ", "enter":
		m.toggle(ctx)
	case "x":
		snap, err := m.engine.Stop(ctx, true)
		m.apply(snap, err, "Stopped.")
	case "e":
		snap, err := m.engine.Extend(m.opts.ExtendShort)
		m.apply(snap, err, fmt.Sprintf("Keep going +%d.", m.opts.ExtendShort))
	case "E":
		snap, err := m.engine.Extend(m.opts.ExtendLong)
		m.apply(snap, err, fmt.Sprintf("Keep going +%d.", m.opts.ExtendLong))
	case "b":
		m.switchMode()
	case "t":
		if err := m.engine.SetType(m.snap.Type.Opposite()); err != nil {
			m.setStatus("Stop the timer before switching type.", true)
			break
		}
		m.snap = m.engine.Snapshot()
	case "p":
		if m.snap.State != model.Idle {
			m.setStatus("Stop the timer before changing preset.", true)
			break
		}
		m.opts.Preset = timer.NextPreset(m.opts.Preset.ID)
		m.setStatus(fmt.Sprintf("Preset %s %d/%d.", m.opts.Preset.Name, m.opts.Preset.Focus, m.opts.Preset.Break), false)
	case "i":
		if !m.sessionOpen() {
			m.setStatus("No open session.", true)
			break
		}
		return m, m.openInput(inputNote, "Note: ", "what pulled you away?")
	default:
		if idx, ok := categoryKey(key); ok {
			m.logInterruption(ctx, model.InterruptionCategories[idx], "")
		}
	}
	return m, nil
}

func (m *Model) toggle(ctx context.Context) {
	switch m.snap.State {
	case model.Idle:
		typ := m.snap.Type
		var taskID *int64
		if typ == model.Focus && m.nowTask != nil {
			id := m.nowTask.ID
			taskID = &id
		}
		snap, err := m.engine.Start(ctx, m.opts.Preset.Minutes(typ), typ, taskID)
		if errors.Is(err, apperrors.ErrPreconditionFailed) {
			m.snap = snap
			m.activeTab = tabTasks
			if errors.Is(err, timer.ErrTaskGone) {
				m.refresh()
				m.setStatus("The now task was deleted. Pick another one and press enter.", true)
				return
			}
			m.setStatus("Pick a now task first: select it and press enter.", true)
			return
		}
		m.apply(snap, err, typ.Title()+" started.")
	case model.Running:
		snap, err := m.engine.Pause()
		m.apply(snap, err, "Paused.")
	case model.Paused:
		snap, err := m.engine.Resume()
		m.apply(snap, err, "Resumed.")
	case model.Completed:
		m.setStatus(fmt.Sprintf("Time's up: e/E to keep going, b to switch to %s.", m.snap.Type.Opposite().Title()), false)
	}
}

func (m *Model) switchMode() {
	next, err := m.engine.Switch(context.Background())
	m.snap = m.engine.Snapshot()
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	m.setStatus(fmt.Sprintf("Ready for %s.", strings.ToLower(next.Title())), false)
}

func (m *Model) logInterruption(ctx context.Context, category model.InterruptionCategory, note string) {
	if _, err := m.engine.LogInterruption(ctx, category, note); err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	m.snap = m.engine.Snapshot()
	m.setStatus(fmt.Sprintf("Logged %s.", category), false)
}

func (m *Model) apply(snap model.TimerSnapshot, err error, okMsg string) {
	m.snap = snap
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	m.setStatus(okMsg, false)
}

func (m *Model) updateTaskKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	key := msg.String()
	if key == "a" {
		return m, m.openInput(inputTask, "Task: ", "what needs doing?")
	}
	selected, ok := m.selectedTask()
	if !ok {
		var cmd tea.Cmd
		m.taskTable, cmd = m.taskTable.Update(msg)
		return m, cmd
	}
	var err error
	switch key {
	case "enter":
		err = m.tasks.SetNow(ctx, &selected.ID)
		if err == nil {
			m.setStatus(fmt.Sprintf("Now: %s", selected.Title), false)
		}
	case "c":
		err = m.tasks.SetNow(ctx, nil)
		if err == nil {
			m.setStatus("Now task cleared.", false)
		}
	case "y":
		err = m.tasks.MoveToToday(ctx, selected.ID)
	case "m":
		err = m.tasks.MoveToDoing(ctx, selected.ID)
	case "d":
		err = m.tasks.MarkDone(ctx, selected.ID)
	case "s":
		_, err = m.tasks.Split(ctx, selected.ID)
	case "X":
		err = m.tasks.Delete(ctx, selected.ID)
	default:
		var cmd tea.Cmd
		m.taskTable, cmd = m.taskTable.Update(msg)
		return m, cmd
	}
	if err != nil {
		m.setStatus(err.Error(), true)
	}
	m.refresh()
	return m, nil
}

func (m *Model) openInput(mode inputMode, prompt, placeholder string) tea.Cmd {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	return m.input.Focus()
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return m, nil
	case tea.KeyTab:
		if m.mode == inputNote {
			m.noteCategory = (m.noteCategory + 1) % len(model.InterruptionCategories)
		}
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.closeInput()
		m.submitInput(mode, value)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.mode = inputNone
	m.input.Blur()
}

func (m *Model) submitInput(mode inputMode, value string) {
	ctx := context.Background()
	switch mode {
	case inputTask:
		if value == "" {
			return
		}
		task, err := m.tasks.Create(ctx, tasks.Draft{Title: value}, model.Inbox)
		if err != nil {
			m.setStatus(err.Error(), true)
			return
		}
		m.setStatus(fmt.Sprintf("Added #%d.", task.ID), false)
		m.refresh()
	case inputNote:
		m.logInterruption(ctx, model.InterruptionCategories[m.noteCategory], value)
	}
}

func (m *Model) quit() tea.Cmd {
	if m.snap.State != model.Idle {
		if _, err := m.engine.Stop(context.Background(), true); err != nil {
			m.log.Warn("stop on quit", "err", err)
		}
	}
	if m.cancel != nil {
		m.cancel()
	}
	return tea.Quit
}

func (m *Model) refresh() {
	ctx := context.Background()
	list, err := m.tasks.List(ctx, nil)
	if err != nil {
		m.setStatus(fmt.Sprintf("failed to load tasks: %v", err), true)
		return
	}
	m.taskList = list
	m.titles = make(map[int64]string, len(list))
	for _, t := range list {
		m.titles[t.ID] = t.Title
	}
	now, err := m.tasks.Now(ctx)
	if err != nil {
		m.log.Warn("failed to load now task", "err", err)
	}
	m.nowTask = now
	cols, rows := buildTaskTableData(m.taskList, m.nowTask)
	m.taskTable.SetColumns(cols)
	m.taskTable.SetRows(rows)
	// An empty table leaves the cursor at -1.
	if c := m.taskTable.Cursor(); len(rows) > 0 && (c < 0 || c >= len(rows)) {
		m.taskTable.SetCursor(maxInt(0, minInt(c, len(rows)-1)))
	}
	m.renderHistory()
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
}

func (m *Model) sessionOpen() bool {
	return m.snap.HasSession() && (m.snap.State == model.Running || m.snap.State == model.Paused)
}

func (m *Model) selectedTask() (model.Task, bool) {
	idx := m.taskTable.Cursor()
	if idx < 0 || idx >= len(m.taskList) {
		return model.Task{}, false
	}
	return m.taskList[idx], true
}

func (m *Model) taskTitle(id *int64) string {
	if id == nil {
		return ""
	}
	return m.titles[*id]
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabTasks {
		m.taskTable.Focus()
	} else {
		m.taskTable.Blur()
	}
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = lipgloss.Height(activeNavStyle.Render("X"))
	if headerHeight < 1 {
		headerHeight = 1
	}
	footerHeight = 1
	if m.status != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.historyView.Width = m.width
	m.historyView.Height = bodyHeight
	m.taskTable.SetWidth(m.width)
	m.taskTable.SetHeight(maxInt(1, bodyHeight-1))
	m.input.Width = maxInt(10, modalInnerWidth(m.width)-lipgloss.Width(m.input.Prompt))
	m.renderHistory()
}

func categoryKey(key string) (int, bool) {
	if len(key) != 1 || key[0] < '1' {
		return 0, false
	}
	idx := int(key[0] - '1')
	if idx >= len(model.InterruptionCategories) {
		return 0, false
	}
	return idx, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
