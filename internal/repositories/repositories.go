package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/llahellec/de-spotify/internal/shared"
)

// sequenced lists the ledger tables that carry a <table>_sequence counter row.
var sequenced = map[string]bool{"runs": true}

// NextSequence bumps the counter behind table and returns its new value.
//
// Run numbers are what `de-spotify history` prints (run #42). The counter is advanced and read in one
// statement, so concurrent stages never share a number.
func NextSequence(db *sql.DB, table string) (int, error) {
	if !sequenced[table] {
		return 0, fmt.Errorf("%w: no sequence for table %q", shared.ErrInvalidInput, table)
	}

	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)
	var next int
	err := db.QueryRow(query).Scan(&next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("%s_sequence is not seeded, run migrations first", table)
	case err != nil:
		return 0, fmt.Errorf("advance %s sequence: %w", table, err)
	}
	return next, nil
}
