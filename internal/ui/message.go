package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/llahellec/de-spotify/internal/tasks"
)

// MsgKind enumerates all message types in the dashboard.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgStageComplete
)

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// stageCompleteMsg is the constructor for [MsgStageComplete], sent once the progress channel is closed.
func stageCompleteMsg() Msg {
	return Msg{kind: MsgStageComplete}
}
