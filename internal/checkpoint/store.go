package checkpoint

import (
	"fmt"

	"github.com/llahellec/de-spotify/internal/shared"
)

// Codec converts between stage rows and CSV records.
type Codec[T any] interface {
	// Columns are the stage-owned columns appended after the track columns.
	Columns() []string
	Decode(Row) (T, error)
	Encode(T) Row
	// Identity returns the track identity of a row.
	Identity(T) string
}

// Store is a checkpoint file owned by one stage.
type Store[T any] struct {
	path   string
	codec  Codec[T]
	layout Layout
}

// Open loads the stage rows. The checkpoint at path is read when it exists, so a stage resumes from
// its own output; otherwise the rows come from input.
//
// A duplicate track identity is an input error.
func Open[T any](path, input string, codec Codec[T]) (*Store[T], []T, error) {
	source := input
	if shared.FileExists(path) {
		source = path
	}
	if source == "" {
		return nil, nil, fmt.Errorf("%w: no checkpoint at %q and no input file", shared.ErrMissingArgument, path)
	}

	layout, raw, err := readTableFile(source)
	if err != nil {
		return nil, nil, err
	}

	rows := make([]T, 0, len(raw))
	for i, r := range raw {
		row, err := codec.Decode(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: row %d: %w", source, i+1, err)
		}
		rows = append(rows, row)
	}

	if err := checkUnique(rows, codec.Identity); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", source, err)
	}

	return &Store[T]{path: path, codec: codec, layout: layout.forStage(codec.Columns())}, rows, nil
}

// Load reads a checkpoint that must already exist.
func Load[T any](path string, codec Codec[T]) ([]T, Layout, error) {
	if !shared.FileExists(path) {
		return nil, Layout{}, fmt.Errorf("%w: checkpoint %s does not exist", shared.ErrMissingArgument, path)
	}
	store, rows, err := Open(path, "", codec)
	if err != nil {
		return nil, Layout{}, err
	}
	return rows, store.layout, nil
}

// New creates a store for rows that were not read from path, using the track columns of layout.
func New[T any](path string, layout Layout, codec Codec[T]) *Store[T] {
	if len(layout.columns) == 0 {
		layout = DefaultLayout()
	}
	return &Store[T]{path: path, codec: codec, layout: layout.forStage(codec.Columns())}
}

// Path is the checkpoint file written by Save.
func (s *Store[T]) Path() string { return s.path }

// Layout is the column order written by Save.
func (s *Store[T]) Layout() Layout { return s.layout }

// Save replaces the checkpoint with rows.
func (s *Store[T]) Save(rows []T) error {
	data, err := s.Encode(rows)
	if err != nil {
		return err
	}
	if err := shared.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", s.path, err)
	}
	return nil
}

// Encode renders rows as CSV without writing them.
func (s *Store[T]) Encode(rows []T) ([]byte, error) {
	records := make([]Row, len(rows))
	for i, r := range rows {
		records[i] = s.codec.Encode(r)
	}
	data, err := encodeTable(s.layout, records)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

func checkUnique[T any](rows []T, identity func(T) string) error {
	seen := make(map[string]int, len(rows))
	for i, r := range rows {
		id := identity(r)
		if id == "" {
			continue
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q on rows %d and %d", shared.ErrDuplicateRow, id, prev+1, i+1)
		}
		seen[id] = i
	}
	return nil
}
