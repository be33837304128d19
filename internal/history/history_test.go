package history

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/wrangler/internal/model"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"ID", "Category", "Note"}
	rows := [][]string{
		{"1", "thought", "groceries"},
		{"12", "person", "同僚"},
	}
	lines := formatTable(headers, rows, map[int]bool{0: true})
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "ID Category Note" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != " 1 thought  groceries" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "12 person   同僚" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFitWidthTruncates(t *testing.T) {
	lines := fitWidth([]string{"short", "a much longer line"}, 8)
	if lines[0] != "short" || lines[1] != "a much …" {
		t.Fatalf("unexpected lines: %q", lines)
	}
}

func TestWriteSessions(t *testing.T) {
	taskID := int64(7)
	actual := 1500
	sessions := []model.Session{
		{ID: 2, Type: model.Break, PlannedDurationSeconds: 300, StartedAt: now.Add(-10 * time.Minute)},
		{ID: 1, TaskID: &taskID, Type: model.Focus, PlannedDurationSeconds: 1500, ActualDurationSeconds: &actual, StartedAt: now.Add(-3 * time.Hour), InterruptionCount: 2},
	}
	var buf bytes.Buffer
	if err := WriteSessions(&buf, sessions, map[int64]string{7: "Write report"}, Options{Now: now}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"open", "25m", "Write report", "3 hours ago", "10 minutes ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(lines))
	}
}

func TestWriteEmptyTables(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSessions(&buf, nil, nil, Options{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteInterruptions(&buf, nil, Options{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTasks(&buf, nil, nil, Options{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "No sessions recorded.\nNo interruptions logged.\nNo tasks.\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestWriteTasksMarksNowTask(t *testing.T) {
	est := 2
	tasks := []model.Task{
		{ID: 3, Title: "Review PR", Status: model.Doing, Effort: model.EffortLow, EstimatedPomodoros: &est, UpdatedAt: now},
		{ID: 1, Title: "Inbox zero", Status: model.Inbox, UpdatedAt: now},
	}
	nowID := int64(3)
	var buf bytes.Buffer
	if err := WriteTasks(&buf, tasks, &nowID, Options{Now: now}); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasPrefix(lines[1], "*") || strings.HasPrefix(lines[2], "*") {
		t.Fatalf("expected only task 3 marked:\n%s", buf.String())
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := map[int]string{0: "0m", 60: "1m", 125: "2m05s", 1500: "25m", -5: "0m"}
	for in, want := range cases {
		if got := FormatSeconds(in); got != want {
			t.Errorf("FormatSeconds(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSince(t *testing.T) {
	got, err := ParseSince("2026-05-01", now)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if !got.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", got)
	}

	got, err = ParseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parse yesterday: %v", err)
	}
	if got.Day() != 9 || got.Month() != time.May {
		t.Fatalf("expected May 9, got %v", got)
	}

	if _, err := ParseSince("  ", now); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if _, err := ParseSince("purple elephant", now); err == nil {
		t.Fatalf("expected error for nonsense")
	}
}
