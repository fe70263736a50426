package engine

import "labreserve/internal/models"

// findConflict returns the first reservation blocking [start, end) on the
// given equipment and date, in table order, or nil. excludeID skips the row
// being edited so a reservation never conflicts with itself. Comparison is
// half-open: a booking ending exactly at start does not block.
func findConflict(reservations []models.Reservation, date, equipment, start, end, excludeID string) *models.Reservation {
	for i := range reservations {
		r := &reservations[i]
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if r.Overlaps(date, equipment, start, end) {
			return r
		}
	}
	return nil
}
