package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"labreserve/internal/store"
)

func TestFilename(t *testing.T) {
	assert.Equal(t, "2026-02_tables.xlsx", Filename(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)))
}

func TestNextFirstOfMonth(t *testing.T) {
	got := nextFirstOfMonth(time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 1, 0, 0, time.UTC), got)

	// December rolls into January.
	got = nextFirstOfMonth(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 1, 0, 0, time.UTC), got)
}

func TestExportNow(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, store.TableLabs, [][]string{{"Lab1"}}))
	require.NoError(t, mem.Write(ctx, store.TableBookings, [][]string{
		{"id1", "kim", "Lab1", "HPLC", "2026-03-10", "09:00", "10:00", "1234"},
	}))

	dir := t.TempDir()
	logger := zerolog.New(io.Discard)
	svc := NewService(Config{OutputDir: dir}, mem, nil, &logger)

	require.NoError(t, svc.ExportNow())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := excelize.OpenFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	// One sheet per table, header plus data in the bookings sheet.
	assert.ElementsMatch(t, store.Tables, f.GetSheetList())
	rows, err := f.GetRows(store.TableBookings)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "kim", rows[1][1])
}

func TestWorkbook_RequiresSheet(t *testing.T) {
	wb := NewWorkbook()
	defer wb.Close()

	assert.Error(t, wb.WriteHeader([]string{"a"}))
	assert.Error(t, wb.WriteRow([]string{"b"}))

	require.NoError(t, wb.AddSheet("data"))
	assert.NoError(t, wb.WriteHeader([]string{"a"}))
	assert.NoError(t, wb.WriteRow([]string{"b"}))
}
