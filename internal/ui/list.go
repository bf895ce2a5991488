package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/llahellec/de-spotify/internal/tasks"
)

var _ list.Item = eventItem{}

// maxEvents bounds the event list; older events are dropped.
const maxEvents = 200

// eventItem wraps a row [tasks.ProgressUpdate] to implement [list.Item].
type eventItem struct {
	update tasks.ProgressUpdate
}

func (i eventItem) FilterValue() string { return i.update.Message }
func (i eventItem) Title() string       { return i.update.Message }
func (i eventItem) Description() string {
	if i.update.Total > 0 {
		return fmt.Sprintf("%s • %s %d/%d", i.update.Stage, i.update.Phase, i.update.Step, i.update.Total)
	}
	return fmt.Sprintf("%s • %s", i.update.Stage, i.update.Phase)
}

func newEventList() list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Recent rows"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	return l
}
