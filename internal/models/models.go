// Package models holds the records the reservation engine moves between the
// table store and its callers. All fields are strings: the backing tables are
// plain text sheets and every adapter round-trips values verbatim.
package models

import (
	"fmt"
	"time"

	"labreserve/internal/timespec"
)

// Reservation is one row of the bookings table. An overnight booking is stored
// as two rows sharing a base id with "_1"/"_2" suffixes: the first ends at
// "24:00", the second starts at "00:00" on the next day.
type Reservation struct {
	ID        string `json:"id"`
	UserName  string `json:"user_name"`
	Lab       string `json:"lab"`
	Equipment string `json:"equipment"`
	Date      string `json:"date"`       // YYYY-MM-DD
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`   // HH:MM, "24:00" allowed
	Password  string `json:"-"`          // 4-digit capability token, raw
}

// Overlaps reports whether the reservation collides with [start, end) on the
// given equipment and date. Half-open semantics: touching boundaries do not
// collide. Zero-padded HH:MM compares correctly as a plain string.
func (r *Reservation) Overlaps(date, equipment, start, end string) bool {
	if r.Date != date || r.Equipment != equipment {
		return false
	}
	return r.StartTime < end && start < r.EndTime
}

// Hours returns the booked duration in hours, 0.0 for dirty rows.
func (r *Reservation) Hours() float64 {
	return timespec.Hours(r.StartTime, r.EndTime)
}

// Month returns the "YYYY-MM" bucket of the reservation date.
func (r *Reservation) Month() string {
	if len(r.Date) < 7 {
		return ""
	}
	return r.Date[:7]
}

// EndsBefore reports whether the reservation is fully in the past relative to
// now. Rows with unparseable dates count as past so they drop out of upcoming
// listings instead of sticking around forever.
func (r *Reservation) EndsBefore(now time.Time) bool {
	end := r.EndTime
	if end == timespec.EndOfDay {
		end = "23:59"
	}
	endAt, err := time.ParseInLocation("2006-01-02 15:04", r.Date+" "+end, now.Location())
	if err != nil {
		return true
	}
	return endAt.Before(now)
}

// TimeRange formats the booked interval for logs and notifications.
func (r *Reservation) TimeRange() string {
	return fmt.Sprintf("%s~%s", r.StartTime, r.EndTime)
}

// WaterUsage is one row of the purified-water ledger. Amount stays a decimal
// string; only the aggregator parses it.
type WaterUsage struct {
	Date     string `json:"date"`
	UserName string `json:"user_name"`
	Lab      string `json:"lab"`
	Amount   string `json:"amount"`
}

// Month returns the "YYYY-MM" bucket of the usage date.
func (w *WaterUsage) Month() string {
	if len(w.Date) < 7 {
		return ""
	}
	return w.Date[:7]
}

// LogEntry is one append-only audit row. The engine writes these on every
// successful mutation and never edits or deletes them.
type LogEntry struct {
	Timestamp string `json:"timestamp"` // YYYY-MM-DD HH:MM:SS
	Action    string `json:"action"`
	User      string `json:"user"`
	Details   string `json:"details"`
}
