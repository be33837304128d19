package history

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/verte-zerg/wrangler/internal/model"
)

// Options controls table output.
type Options struct {
	// Now anchors relative times. Zero means time.Now.
	Now time.Time
	// Width truncates lines; zero disables truncation.
	Width int
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// WriteSessions prints sessions newest first as given. titles maps task ids
// to display titles; unknown ids print as #id.
func WriteSessions(w io.Writer, sessions []model.Session, titles map[int64]string, opts Options) error {
	if len(sessions) == 0 {
		return writeLines(w, []string{"No sessions recorded."})
	}
	now := opts.now()
	headers := []string{"ID", "Type", "Planned", "Actual", "Int", "Started", "Task"}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		actual := "open"
		if s.ActualDurationSeconds != nil {
			actual = FormatSeconds(*s.ActualDurationSeconds)
		}
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			string(s.Type),
			FormatSeconds(s.PlannedDurationSeconds),
			actual,
			strconv.Itoa(s.InterruptionCount),
			humanize.RelTime(s.StartedAt, now, "ago", "from now"),
			taskLabel(s.TaskID, titles),
		})
	}
	lines := formatTable(headers, rows, map[int]bool{0: true, 2: true, 3: true, 4: true})
	return writeLines(w, fitWidth(lines, opts.Width))
}

// WriteInterruptions prints a session's interruptions oldest first.
func WriteInterruptions(w io.Writer, list []model.Interruption, opts Options) error {
	if len(list) == 0 {
		return writeLines(w, []string{"No interruptions logged."})
	}
	headers := []string{"ID", "At", "Category", "Note"}
	rows := make([][]string, 0, len(list))
	for _, in := range list {
		rows = append(rows, []string{
			strconv.FormatInt(in.ID, 10),
			in.Timestamp.Local().Format("2006-01-02 15:04:05"),
			string(in.Category),
			in.Note,
		})
	}
	lines := formatTable(headers, rows, map[int]bool{0: true})
	return writeLines(w, fitWidth(lines, opts.Width))
}

// WriteTasks prints tasks; nowID, when set, is marked with an asterisk.
func WriteTasks(w io.Writer, tasks []model.Task, nowID *int64, opts Options) error {
	if len(tasks) == 0 {
		return writeLines(w, []string{"No tasks."})
	}
	now := opts.now()
	headers := []string{"", "ID", "Status", "Effort", "Est", "Updated", "Title"}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		mark := ""
		if nowID != nil && *nowID == t.ID {
			mark = "*"
		}
		est := "-"
		if t.EstimatedPomodoros != nil {
			est = strconv.Itoa(*t.EstimatedPomodoros)
		}
		effort := string(t.Effort)
		if effort == "" {
			effort = "-"
		}
		rows = append(rows, []string{
			mark,
			strconv.FormatInt(t.ID, 10),
			string(t.Status),
			effort,
			est,
			humanize.RelTime(t.UpdatedAt, now, "ago", "from now"),
			t.Title,
		})
	}
	lines := formatTable(headers, rows, map[int]bool{1: true, 4: true})
	return writeLines(w, fitWidth(lines, opts.Width))
}

// WritePresets prints the timer presets, marking the active one.
func WritePresets(w io.Writer, presets []model.Preset, activeID string) error {
	headers := []string{"", "ID", "Focus", "Break", "Name"}
	rows := make([][]string, 0, len(presets))
	for _, p := range presets {
		mark := ""
		if p.ID == activeID {
			mark = "*"
		}
		rows = append(rows, []string{mark, p.ID, fmt.Sprintf("%dm", p.Focus), fmt.Sprintf("%dm", p.Break), p.Name})
	}
	return writeLines(w, formatTable(headers, rows, map[int]bool{2: true, 3: true}))
}

// FormatSeconds renders a duration as 25m or 2m05s.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	m, s := seconds/60, seconds%60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// ParseSince turns "yesterday", "last week", "3 days ago" or a plain date into
// a time relative to now.
func ParseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339, "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, value, now.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(value, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", value, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", value)
	}
	return result.Time, nil
}

func taskLabel(id *int64, titles map[int64]string) string {
	if id == nil {
		return "-"
	}
	if title, ok := titles[*id]; ok {
		return title
	}
	return "#" + strconv.FormatInt(*id, 10)
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
