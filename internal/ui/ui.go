package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/tasks"
)

// Model is the dashboard state.
type Model struct {
	title   string
	updates <-chan tasks.ProgressUpdate
	halt    func()
	cancel  context.CancelFunc

	bar     progress.Model
	spinner spinner.Model
	events  list.Model
	help    help.Model
	keys    keyMap

	step   int
	total  int
	status string
	counts map[string]int
	report *tasks.Report

	stopping bool
	aborting bool
	done     bool
	width    int
	height   int
}

// NewModel creates a dashboard fed by updates.
//
// The first stop key calls halt so the stage finishes its current row; a second one calls cancel
// and abandons it. A nil halt makes the first key cancel.
func NewModel(title string, updates <-chan tasks.ProgressUpdate, halt func(), cancel context.CancelFunc) *Model {
	return &Model{
		title:   title,
		updates: updates,
		halt:    halt,
		cancel:  cancel,
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.warn)),
		events:  newEventList(),
		help:    help.New(),
		keys:    newKeyMap(),
		status:  "starting",
		counts:  map[string]int{},
	}
}

// Run shows the dashboard until the stage closes updates and the user dismisses the summary.
func Run(ctx context.Context, title string, updates <-chan tasks.ProgressUpdate, halt func(), cancel context.CancelFunc, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(NewModel(title, updates, halt, cancel), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// stop halts the stage on the first key press and aborts the row in flight on the second.
func (m *Model) stop() {
	switch {
	case m.aborting:
	case !m.stopping && m.halt != nil:
		m.stopping = true
		m.status = "stopping after the current row, press q again to abort it"
		m.halt()
	default:
		m.stopping, m.aborting = true, true
		m.status = "aborting the current row"
		if m.cancel != nil {
			m.cancel()
		}
	}
}

// Init starts the spinner and begins reading progress updates.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-20, 10), 80)
		m.events.SetSize(msg.Width-4, max(msg.Height-14, 4))
		return m, nil

	case tea.KeyMsg:
		if m.done {
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		}
		if key.Matches(msg, m.keys.stop) {
			m.stop()
			return m, nil
		}
		var cmd tea.Cmd
		m.events, cmd = m.events.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.apply(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgStageComplete:
			m.done = true
			if m.stopping {
				return m, tea.Quit
			}
			return m, nil
		}
	}
	return m, nil
}

// apply folds one progress update into the counters and event list.
func (m *Model) apply(u tasks.ProgressUpdate) {
	m.status = u.Message

	switch u.Phase {
	case tasks.LoadRows:
		m.step, m.total = 0, u.Total
	case tasks.LookupRow, tasks.DownloadRow:
		m.step, m.total = u.Step, u.Total
		if status := rowStatus(u.Data); status != "" {
			m.counts[status]++
		}
		m.events.InsertItem(0, eventItem{update: u})
		if n := len(m.events.Items()); n > maxEvents {
			m.events.RemoveItem(n - 1)
		}
	case tasks.ReconcileRows:
		m.step, m.total = u.Step, u.Total
	case tasks.Finished:
		if report, ok := u.Data.(tasks.Report); ok {
			m.report = &report
		}
	}
}

func rowStatus(data any) string {
	switch v := data.(type) {
	case models.LookupResult:
		return string(v.Status)
	case models.DownloadStatus:
		return string(v)
	}
	return ""
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.updates
		if !ok {
			return stageCompleteMsg()
		}
		return progressUpdateMsg(update)
	}
}

// View renders the dashboard.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(styles.title.Render(m.title) + "\n")

	percent := 0.0
	if m.total > 0 {
		percent = float64(m.step) / float64(m.total)
	}
	b.WriteString(fmt.Sprintf("%s %d/%d\n", m.bar.ViewAs(percent), m.step, m.total))

	if m.done {
		b.WriteString(styles.ok.Render("✓ stage finished") + "\n")
	} else {
		b.WriteString(m.spinner.View() + " " + m.status + "\n")
	}

	if counts := m.renderCounts(); counts != "" {
		b.WriteString(counts + "\n")
	}
	b.WriteString("\n" + m.events.View() + "\n")

	if m.done {
		summary := "No summary available"
		if m.report != nil {
			summary = m.report.String()
		}
		b.WriteString(styles.box.Render(summary) + "\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
		return b.String()
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderCounts() string {
	names := make([]string, 0, len(m.counts))
	for name := range m.counts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, styles.statusStyle(name).Render(fmt.Sprintf("%s %d", name, m.counts[name])))
	}
	return strings.Join(parts, "  ")
}
