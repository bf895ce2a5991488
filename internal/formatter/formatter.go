// Package formatter renders coverage reports and the run history as text tables, Markdown or JSON.
package formatter

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "text", "markdown" (or "md") and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "table":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidInput, s)
}

// MissingTrack is a master row without a resolved link.
type MissingTrack struct {
	URI    string `json:"track_uri"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Note   string `json:"note,omitempty"`
}

// ArtistCount counts missing tracks per primary artist.
type ArtistCount struct {
	Artist string `json:"artist"`
	Count  int    `json:"count"`
}

// Coverage summarises a master checkpoint and, when present, the download checkpoint.
type Coverage struct {
	Total    int `json:"total"`
	WithLink int `json:"with_link"`
	Primary  int `json:"primary"`
	Fallback int `json:"fallback"`
	None     int `json:"none"`
	// AltLinks counts rows where both providers found different links.
	AltLinks int `json:"alt_links"`

	Downloads map[models.DownloadStatus]int `json:"downloads,omitempty"`

	Missing        []MissingTrack `json:"missing"`
	MissingArtists []ArtistCount  `json:"missing_artists"`

	Library Library `json:"library"`
}

// maxMissingArtists bounds the artist breakdown.
const maxMissingArtists = 10

// BuildCoverage counts provenance, links and download states, and summarises the library.
// downloads may be nil.
func BuildCoverage(master []models.MasterRecord, downloads []models.DownloadRecord) Coverage {
	c := Coverage{Total: len(master), Missing: []MissingTrack{}, MissingArtists: []ArtistCount{}}
	perArtist := map[string]int{}
	tracks := make([]models.Track, 0, len(master))

	for _, m := range master {
		tracks = append(tracks, m.Track)
		if m.Link != "" {
			c.WithLink++
		}
		if m.AltLink != "" {
			c.AltLinks++
		}
		switch m.Provenance {
		case models.ProvenancePrimary:
			c.Primary++
		case models.ProvenanceFallback:
			c.Fallback++
		default:
			c.None++
			c.Missing = append(c.Missing, MissingTrack{URI: m.URI, Artist: m.PrimaryArtist(), Title: m.Title, Note: m.Note})
			perArtist[m.PrimaryArtist()]++
		}
	}

	for artist, n := range perArtist {
		c.MissingArtists = append(c.MissingArtists, ArtistCount{Artist: artist, Count: n})
	}
	slices.SortFunc(c.MissingArtists, func(a, b ArtistCount) int {
		if n := cmp.Compare(b.Count, a.Count); n != 0 {
			return n
		}
		return strings.Compare(a.Artist, b.Artist)
	})
	if len(c.MissingArtists) > maxMissingArtists {
		c.MissingArtists = c.MissingArtists[:maxMissingArtists]
	}

	c.Library = BuildLibrary(tracks)

	if downloads != nil {
		c.Downloads = map[models.DownloadStatus]int{}
		for _, d := range downloads {
			c.Downloads[d.Status.Persisted()]++
		}
	}
	return c
}

// Percent is the share of rows with a resolved link.
func (c Coverage) Percent() float64 {
	return percent(c.WithLink, c.Total)
}

// Render renders c in format f.
func (c Coverage) Render(f Format) (string, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode report: %w", err)
		}
		return string(data) + "\n", nil
	case FormatMarkdown:
		return c.render(func(tw table.Writer) string { return tw.RenderMarkdown() }, "## "), nil
	default:
		return c.render(func(tw table.Writer) string { return tw.Render() }, ""), nil
	}
}

// downloadOrder lists download states in pipeline order.
var downloadOrder = []models.DownloadStatus{
	models.DownloadSuccess,
	models.DownloadSkippedExisting,
	models.DownloadFailedNoMatch,
	models.DownloadFailedError,
	models.DownloadPending,
}

func (c Coverage) render(draw func(table.Writer) string, heading string) string {
	var b strings.Builder
	section := func(title string, tw table.Writer) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(heading + title + "\n")
		if heading != "" {
			b.WriteString("\n")
		}
		b.WriteString(draw(tw) + "\n")
	}

	summary := newTable([]string{"Source", "Tracks", "Share"}, alignLeft, alignRight, alignRight)
	summary.AppendRow(table.Row{"Songstats (primary)", c.Primary, formatPercent(c.Primary, c.Total)})
	summary.AppendRow(table.Row{"Discogs (fallback)", c.Fallback, formatPercent(c.Fallback, c.Total)})
	summary.AppendRow(table.Row{"No link", c.None, formatPercent(c.None, c.Total)})
	summary.AppendFooter(table.Row{"Total", c.Total, formatPercent(c.WithLink, c.Total) + " covered"})
	section("Coverage", summary)

	if c.AltLinks > 0 {
		b.WriteString(fmt.Sprintf("%d tracks carry a different Discogs link as alternate.\n", c.AltLinks))
	}

	if c.Downloads != nil {
		downloads := newTable([]string{"Download", "Tracks", "Share"}, alignLeft, alignRight, alignRight)
		total := 0
		for _, n := range c.Downloads {
			total += n
		}
		for _, status := range downloadOrder {
			if n := c.Downloads[status]; n > 0 {
				downloads.AppendRow(table.Row{status.String(), n, formatPercent(n, total)})
			}
		}
		downloads.AppendFooter(table.Row{"Total", total, ""})
		section("Downloads", downloads)
	}

	c.Library.sections(section)

	if len(c.MissingArtists) > 0 {
		artists := newTable([]string{"Artist", "Missing"}, alignLeft, alignRight)
		for _, a := range c.MissingArtists {
			artists.AppendRow(table.Row{a.Artist, a.Count})
		}
		section("Most Missing Artists", artists)
	}

	if len(c.Missing) > 0 {
		missing := newTable([]string{"#", "Artist", "Title", "Track URI"}, alignRight, alignLeft, alignLeft, alignLeft)
		for i, m := range c.Missing {
			missing.AppendRow(table.Row{i + 1, m.Artist, m.Title, m.URI})
		}
		section("Missing Tracks", missing)
	}
	return b.String()
}

// RenderRuns renders the run ledger newest first.
func RenderRuns(runs []*models.Run, f Format) (string, error) {
	if f == FormatJSON {
		type runJSON struct {
			ID         string     `json:"id"`
			Sequence   int        `json:"sequence"`
			Stage      string     `json:"stage"`
			Checkpoint string     `json:"checkpoint"`
			Processed  int        `json:"processed"`
			Succeeded  int        `json:"succeeded"`
			Failed     int        `json:"failed"`
			Remaining  int        `json:"remaining"`
			StopReason string     `json:"stop_reason,omitempty"`
			StartedAt  time.Time  `json:"started_at"`
			FinishedAt *time.Time `json:"finished_at,omitempty"`
		}
		out := make([]runJSON, 0, len(runs))
		for _, r := range runs {
			out = append(out, runJSON{
				ID: r.ID(), Sequence: r.Sequence(), Stage: string(r.Stage()), Checkpoint: r.Checkpoint(),
				Processed: r.Processed(), Succeeded: r.Succeeded(), Failed: r.Failed(), Remaining: r.Remaining(),
				StopReason: string(r.StopReason()), StartedAt: r.StartedAt(), FinishedAt: r.FinishedAt(),
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode runs: %w", err)
		}
		return string(data) + "\n", nil
	}

	tw := newTable(
		[]string{"#", "Stage", "Started", "Duration", "Processed", "OK", "Failed", "Left", "Stop"},
		alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft,
	)
	for _, r := range runs {
		duration, stop := "running", string(r.StopReason())
		if r.FinishedAt() != nil {
			duration = r.Duration().Round(time.Second).String()
		}
		tw.AppendRow(table.Row{
			r.Sequence(), r.Stage(), r.StartedAt().Local().Format("2006-01-02 15:04"), duration,
			r.Processed(), r.Succeeded(), r.Failed(), r.Remaining(), stop,
		})
	}
	if f == FormatMarkdown {
		return tw.RenderMarkdown() + "\n", nil
	}
	return tw.Render() + "\n", nil
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func newTable(headers []string, aligns ...columnAlignment) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft, AlignFooter: align})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func formatPercent(n, total int) string {
	return strconv.FormatFloat(percent(n, total), 'f', 1, 64) + "%"
}
