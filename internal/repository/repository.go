// Package repository maps the raw string rows of a TableStore to the typed
// records the engine works with. It owns column order and nothing else: no
// validation, no business rules.
package repository

import (
	"context"
	"strings"

	"labreserve/internal/models"
	"labreserve/internal/store"
)

type Repository struct {
	store store.TableStore
}

func New(s store.TableStore) *Repository {
	return &Repository{store: s}
}

// clock trims sheet-style "09:00:00" values down to "HH:MM". The original
// spreadsheet grew such rows whenever someone edited a cell by hand.
func clock(v string) string {
	if len(v) > 5 {
		return v[:5]
	}
	return v
}

// Labs returns the lab registry in table order.
func (r *Repository) Labs(ctx context.Context) ([]string, error) {
	return r.names(ctx, store.TableLabs)
}

// SaveLabs overwrites the lab registry.
func (r *Repository) SaveLabs(ctx context.Context, names []string) error {
	return r.saveNames(ctx, store.TableLabs, names)
}

// Equipment returns the equipment registry in table order.
func (r *Repository) Equipment(ctx context.Context) ([]string, error) {
	return r.names(ctx, store.TableEquipment)
}

// SaveEquipment overwrites the equipment registry.
func (r *Repository) SaveEquipment(ctx context.Context, names []string) error {
	return r.saveNames(ctx, store.TableEquipment, names)
}

func (r *Repository) names(ctx context.Context, table string) ([]string, error) {
	rows, err := r.store.Read(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (r *Repository) saveNames(ctx context.Context, table string, names []string) error {
	rows := make([][]string, 0, len(names))
	for _, n := range names {
		rows = append(rows, []string{n})
	}
	return r.store.Write(ctx, table, rows)
}

// Reservations returns every booking row in table order.
func (r *Repository) Reservations(ctx context.Context) ([]models.Reservation, error) {
	rows, err := r.store.Read(ctx, store.TableBookings)
	if err != nil {
		return nil, err
	}
	out := make([]models.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Reservation{
			ID:        row[0],
			UserName:  row[1],
			Lab:       row[2],
			Equipment: row[3],
			Date:      row[4],
			StartTime: clock(row[5]),
			EndTime:   clock(row[6]),
			Password:  row[7],
		})
	}
	return out, nil
}

// SaveReservations overwrites the bookings table.
func (r *Repository) SaveReservations(ctx context.Context, reservations []models.Reservation) error {
	rows := make([][]string, 0, len(reservations))
	for _, b := range reservations {
		rows = append(rows, reservationRow(b))
	}
	return r.store.Write(ctx, store.TableBookings, rows)
}

// AppendReservations adds bookings without rewriting the table. Multiple rows
// go down in one store call so an overnight pair is never half-written.
func (r *Repository) AppendReservations(ctx context.Context, reservations ...models.Reservation) error {
	rows := make([][]string, 0, len(reservations))
	for _, b := range reservations {
		rows = append(rows, reservationRow(b))
	}
	return r.store.Append(ctx, store.TableBookings, rows...)
}

func reservationRow(b models.Reservation) []string {
	return []string{b.ID, b.UserName, b.Lab, b.Equipment, b.Date, b.StartTime, b.EndTime, b.Password}
}

// WaterUsage returns the purified-water ledger in table order.
func (r *Repository) WaterUsage(ctx context.Context) ([]models.WaterUsage, error) {
	rows, err := r.store.Read(ctx, store.TableWater)
	if err != nil {
		return nil, err
	}
	out := make([]models.WaterUsage, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.WaterUsage{
			Date:     row[0],
			UserName: row[1],
			Lab:      row[2],
			Amount:   row[3],
		})
	}
	return out, nil
}

// SaveWaterUsage overwrites the water ledger.
func (r *Repository) SaveWaterUsage(ctx context.Context, usage []models.WaterUsage) error {
	rows := make([][]string, 0, len(usage))
	for _, w := range usage {
		rows = append(rows, []string{w.Date, w.UserName, w.Lab, w.Amount})
	}
	return r.store.Write(ctx, store.TableWater, rows)
}

// AppendWaterUsage adds one ledger row.
func (r *Repository) AppendWaterUsage(ctx context.Context, w models.WaterUsage) error {
	return r.store.Append(ctx, store.TableWater, []string{w.Date, w.UserName, w.Lab, w.Amount})
}

// AuditLog returns every audit row in table order.
func (r *Repository) AuditLog(ctx context.Context) ([]models.LogEntry, error) {
	rows, err := r.store.Read(ctx, store.TableLogs)
	if err != nil {
		return nil, err
	}
	out := make([]models.LogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.LogEntry{
			Timestamp: row[0],
			Action:    row[1],
			User:      row[2],
			Details:   row[3],
		})
	}
	return out, nil
}

// AppendLog adds one audit row. The log is append-only from this side; there
// is no delete and no overwrite.
func (r *Repository) AppendLog(ctx context.Context, e models.LogEntry) error {
	return r.store.Append(ctx, store.TableLogs, []string{e.Timestamp, e.Action, e.User, e.Details})
}
