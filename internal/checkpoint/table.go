package checkpoint

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/llahellec/de-spotify/internal/shared"
)

// reserved columns belong to a stage (current or legacy) and are never carried through as extras.
var reserved = map[string]bool{
	colLink: true, colLookupStatus: true, colLookupNote: true, colLookedUpAt: true,
	colProvenance: true, colAltLink: true,
	colDownloadStatus: true, colFilePath: true, colActualDuration: true, colAttempts: true,
	colSearchedLink: true, colDownloadedAt: true, colMetadataEmbedded: true, colDownloadNote: true,

	legacyURL: true, legacyStatus: true, legacyOrigin: true, legacyDownloaded: true,
	legacyDownloadDate: true, legacyActualDuration: true, legacySearchedURL: true,
}

// column is one header cell: the name as written in the file and its row key.
type column struct {
	name string
	key  string
}

// Layout is the column order of a checkpoint file.
type Layout struct {
	columns []column
}

// newLayout derives the row keys for header. Track aliases map to their canonical key the first
// time they appear; later duplicates keep their own normalized key.
func newLayout(header []string) Layout {
	var l Layout
	seen := make(map[string]bool)
	for _, name := range header {
		key := NormalizeColumn(name)
		if c, ok := canonical[key]; ok && !seen[c] {
			key = c
		}
		if key == "" || seen[key] {
			key = fmt.Sprintf("%s_%d", key, len(l.columns))
		}
		seen[key] = true
		l.columns = append(l.columns, column{name: name, key: key})
	}
	return l
}

// DefaultLayout is used when a stage writes rows that were not read from a file.
func DefaultLayout() Layout {
	return newLayout(TrackColumns())
}

// Has reports whether the layout contains key.
func (l Layout) Has(key string) bool {
	for _, c := range l.columns {
		if c.key == key {
			return true
		}
	}
	return false
}

// Header returns the column names in file order.
func (l Layout) Header() []string {
	out := make([]string, len(l.columns))
	for i, c := range l.columns {
		out[i] = c.name
	}
	return out
}

// forStage drops every reserved column and appends the stage columns, so a stage writing its own
// output back produces the same header it read.
func (l Layout) forStage(stageCols []string) Layout {
	var out Layout
	for _, c := range l.columns {
		if !reserved[c.key] {
			out.columns = append(out.columns, c)
		}
	}
	for _, key := range stageCols {
		out.columns = append(out.columns, column{name: key, key: key})
	}
	return out
}

// readTable parses CSV data into a layout and rows keyed by that layout.
func readTable(r io.Reader) (Layout, []Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Layout{}, nil, fmt.Errorf("%w: empty file", shared.ErrInvalidInput)
	}
	if err != nil {
		return Layout{}, nil, fmt.Errorf("%w: read header: %w", shared.ErrInvalidInput, err)
	}

	layout := newLayout(header)
	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Layout{}, nil, fmt.Errorf("%w: line %d: %w", shared.ErrInvalidInput, line, err)
		}
		row := make(Row, len(layout.columns))
		for i, c := range layout.columns {
			if i < len(record) {
				row[c.key] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return layout, rows, nil
}

// readTableFile opens path and parses it with readTable.
func readTableFile(path string) (Layout, []Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return Layout{}, nil, fmt.Errorf("%w: open %s: %w", shared.ErrFilesystem, path, err)
	}
	defer f.Close()

	layout, rows, err := readTable(f)
	if err != nil {
		return Layout{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return layout, rows, nil
}

// encodeTable renders rows in layout order.
func encodeTable(layout Layout, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(layout.Header()); err != nil {
		return nil, err
	}
	record := make([]string, len(layout.columns))
	for _, row := range rows {
		for i, c := range layout.columns {
			record[i] = row[c.key]
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
