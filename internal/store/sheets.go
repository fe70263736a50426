package store

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Sheets is the Google Sheets backend: one spreadsheet, one worksheet per
// logical table, row 1 of each worksheet reserved for headers. This is the
// store the reservation data originally lived in.
type Sheets struct {
	service       *sheets.Service
	spreadsheetID string
	logger        *zerolog.Logger
}

// NewSheets authenticates with a service-account key file and binds to the
// given spreadsheet.
func NewSheets(ctx context.Context, spreadsheetID, credentialsFile string, logger *zerolog.Logger) (*Sheets, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	service, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	s := &Sheets{service: service, spreadsheetID: spreadsheetID, logger: logger}
	if err := s.ensureHeaders(ctx); err != nil {
		return nil, err
	}

	logger.Info().Str("spreadsheet", spreadsheetID).Msg("sheets store initialized")
	return s, nil
}

// lastColumn returns the A1-notation letter of the last data column.
// All tables fit in A..H.
func lastColumn(cols []string) string {
	return string(rune('A' + len(cols) - 1))
}

func (s *Sheets) dataRange(table string, cols []string) string {
	return fmt.Sprintf("%s!A2:%s", table, lastColumn(cols))
}

func (s *Sheets) ensureHeaders(ctx context.Context) error {
	for _, table := range Tables {
		cols, _ := Columns(table)
		header := make([]interface{}, len(cols))
		for i, c := range cols {
			header[i] = c
		}
		vr := &sheets.ValueRange{Values: [][]interface{}{header}}
		_, err := s.service.Spreadsheets.Values.
			Update(s.spreadsheetID, fmt.Sprintf("%s!A1:%s1", table, lastColumn(cols)), vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write %s header: %w", table, err)
		}
	}
	return nil
}

func (s *Sheets) Read(ctx context.Context, table string) ([][]string, error) {
	cols, err := Columns(table)
	if err != nil {
		return nil, err
	}

	resp, err := s.service.Spreadsheets.Values.
		Get(s.spreadsheetID, s.dataRange(table, cols)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, fmt.Sprint(cell))
		}
		rows = append(rows, pad(row, len(cols)))
	}
	return rows, nil
}

func (s *Sheets) Write(ctx context.Context, table string, rows [][]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.
		Clear(s.spreadsheetID, s.dataRange(table, cols), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	if len(rows) == 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: toValues(rows, len(cols))}
	_, err = s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, s.dataRange(table, cols), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	return nil
}

func (s *Sheets) Append(ctx context.Context, table string, rows ...[]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: toValues(rows, len(cols))}
	_, err = s.service.Spreadsheets.Values.
		Append(s.spreadsheetID, s.dataRange(table, cols), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return nil
}

func toValues(rows [][]string, want int) [][]interface{} {
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		padded := pad(row, want)
		cells := make([]interface{}, len(padded))
		for i, v := range padded {
			cells[i] = v
		}
		values = append(values, cells)
	}
	return values
}

func (s *Sheets) Close() error { return nil }
