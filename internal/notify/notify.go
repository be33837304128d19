// Package notify renders the message shown when a timer runs out.
package notify

import (
	"fmt"
	"io"
	"strings"

	"github.com/cbroglie/mustache"

	"github.com/verte-zerg/wrangler/internal/model"
)

// DefaultMessage is used when no template is configured.
const DefaultMessage = "{{type}} complete{{#task}}: {{{task}}}{{/task}} ({{minutes}} min)"

const bell = "\a"

// Notifier formats completion messages and optionally rings the bell.
type Notifier struct {
	template string
	bell     bool
	out      io.Writer
}

// New returns a Notifier. An empty template uses DefaultMessage; out receives
// the bell character and may be nil when bell is false.
func New(template string, ringBell bool, out io.Writer) *Notifier {
	if strings.TrimSpace(template) == "" {
		template = DefaultMessage
	}
	return &Notifier{template: template, bell: ringBell && out != nil, out: out}
}

// Validate reports whether the template parses.
func Validate(template string) error {
	if _, err := mustache.ParseString(template); err != nil {
		return fmt.Errorf("invalid notify template: %w", err)
	}
	return nil
}

// Message renders the template for a completed timer. taskTitle may be empty.
func (n *Notifier) Message(snap model.TimerSnapshot, taskTitle string) string {
	data := map[string]interface{}{
		"type":    snap.Type.Title(),
		"task":    taskTitle,
		"minutes": snap.TotalSeconds / 60,
	}
	msg, err := mustache.Render(n.template, data)
	if err != nil {
		// Fall back to a plain message if the template fails.
		msg = fmt.Sprintf("%s complete (%d min)", snap.Type.Title(), snap.TotalSeconds/60)
	}
	return msg
}

// Notify renders the message and rings the bell when enabled.
func (n *Notifier) Notify(snap model.TimerSnapshot, taskTitle string) string {
	if n.bell {
		if _, err := io.WriteString(n.out, bell); err != nil {
			// Best-effort bell.
			_ = err
		}
	}
	return n.Message(snap, taskTitle)
}
