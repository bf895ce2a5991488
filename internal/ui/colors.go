package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/llahellec/de-spotify/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	box   lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		box:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(h)).Padding(0, 1),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// statusStyle colours a status name by outcome.
func (p *Palette) statusStyle(status string) lipgloss.Style {
	switch status {
	case string(models.LookupFound), string(models.DownloadSuccess), string(models.DownloadSkippedExisting):
		return p.ok
	case string(models.LookupError), string(models.DownloadFailedError):
		return p.err
	case string(models.LookupNotFound), string(models.DownloadFailedNoMatch):
		return p.warn
	}
	return p.help
}
