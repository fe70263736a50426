// Package store abstracts the tabular backends holding the reservation data.
// Every backend exposes the same five logical tables as ordered string rows
// and supports full-table reads, full-table overwrites and row appends.
// None of the backends offers cross-table transactions; callers own the
// consequences (see the rename propagation notes in the engine).
package store

import (
	"context"
	"fmt"
)

// Logical table names, matching the worksheets of the original spreadsheet.
const (
	TableLabs      = "labs"
	TableEquipment = "equipment"
	TableBookings  = "bookings"
	TableWater     = "water"
	TableLogs      = "logs"
)

// Tables lists every logical table in export order.
var Tables = []string{TableLabs, TableEquipment, TableBookings, TableWater, TableLogs}

var tableColumns = map[string][]string{
	TableLabs:      {"name"},
	TableEquipment: {"name"},
	TableBookings:  {"id", "user_name", "lab", "equipment", "date", "start_time", "end_time", "password"},
	TableWater:     {"date", "user_name", "lab", "amount"},
	TableLogs:      {"timestamp", "action", "user", "details"},
}

// Columns returns the column names of a logical table.
func Columns(table string) ([]string, error) {
	cols, ok := tableColumns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return cols, nil
}

// TableStore is the contract every backend implements. Rows are positional
// and follow Columns(table); no backend interprets the values.
type TableStore interface {
	// Read returns all rows of a table, excluding any header.
	Read(ctx context.Context, table string) ([][]string, error)

	// Write replaces the full contents of a table.
	Write(ctx context.Context, table string, rows [][]string) error

	// Append adds rows to the end of a table without touching existing ones.
	Append(ctx context.Context, table string, rows ...[]string) error

	// Close releases backend resources.
	Close() error
}

// pad returns the row extended with empty strings up to want columns. Sheets
// in particular drops trailing empty cells on read.
func pad(row []string, want int) []string {
	if len(row) >= want {
		return row[:want]
	}
	out := make([]string, want)
	copy(out, row)
	return out
}
