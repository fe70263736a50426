package engine

import (
	"context"
	"sort"
	"strconv"
)

// LabShare is one lab's slice of a monthly total.
type LabShare struct {
	Lab   string  `json:"lab"`
	Total float64 `json:"total"`
	Share float64 `json:"share"`
}

// MonthlyTotal is one (month, lab) bucket with its share of that month.
type MonthlyTotal struct {
	Month string  `json:"month"` // YYYY-MM
	Lab   string  `json:"lab"`
	Total float64 `json:"total"`
	Share float64 `json:"share"`
}

// EquipmentOccupancy sums booked hours per lab for one equipment and month
// and returns each lab's share, largest first. Rows with unparseable times
// contribute zero hours rather than failing the rollup.
func (e *Engine) EquipmentOccupancy(ctx context.Context, equipment, month string) ([]LabShare, error) {
	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return nil, storeErr("read reservations", err)
	}

	perLab := make(map[string]float64)
	for _, r := range reservations {
		if r.Equipment != equipment || r.Month() != month {
			continue
		}
		perLab[r.Lab] += r.Hours()
	}
	return shares(perLab), nil
}

// EquipmentTrend returns booked hours per (month, lab) for one equipment
// across all recorded months, with each bucket's share of its month.
func (e *Engine) EquipmentTrend(ctx context.Context, equipment string) ([]MonthlyTotal, error) {
	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return nil, storeErr("read reservations", err)
	}

	buckets := make(map[string]map[string]float64) // month -> lab -> hours
	for _, r := range reservations {
		if r.Equipment != equipment || r.Month() == "" {
			continue
		}
		if buckets[r.Month()] == nil {
			buckets[r.Month()] = make(map[string]float64)
		}
		buckets[r.Month()][r.Lab] += r.Hours()
	}
	return monthlyTotals(buckets), nil
}

// WaterShares sums ledger amounts per lab for one month with each lab's
// share. Non-numeric amounts count as zero, keeping the rollup resilient to
// hand-edited rows.
func (e *Engine) WaterShares(ctx context.Context, month string) ([]LabShare, error) {
	usage, err := e.repo.WaterUsage(ctx)
	if err != nil {
		return nil, storeErr("read water usage", err)
	}

	perLab := make(map[string]float64)
	for _, w := range usage {
		if w.Month() != month {
			continue
		}
		amount, _ := strconv.ParseFloat(w.Amount, 64)
		perLab[w.Lab] += amount
	}
	return shares(perLab), nil
}

// WaterTrend returns ledger totals per (month, lab) across all months.
func (e *Engine) WaterTrend(ctx context.Context) ([]MonthlyTotal, error) {
	usage, err := e.repo.WaterUsage(ctx)
	if err != nil {
		return nil, storeErr("read water usage", err)
	}

	buckets := make(map[string]map[string]float64)
	for _, w := range usage {
		if w.Month() == "" {
			continue
		}
		if buckets[w.Month()] == nil {
			buckets[w.Month()] = make(map[string]float64)
		}
		amount, _ := strconv.ParseFloat(w.Amount, 64)
		buckets[w.Month()][w.Lab] += amount
	}
	return monthlyTotals(buckets), nil
}

func shares(perLab map[string]float64) []LabShare {
	var grand float64
	for _, v := range perLab {
		grand += v
	}

	out := make([]LabShare, 0, len(perLab))
	for lab, total := range perLab {
		s := LabShare{Lab: lab, Total: total}
		if grand > 0 {
			s.Share = total / grand
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Lab < out[j].Lab
	})
	return out
}

func monthlyTotals(buckets map[string]map[string]float64) []MonthlyTotal {
	var out []MonthlyTotal
	for month, perLab := range buckets {
		var monthTotal float64
		for _, v := range perLab {
			monthTotal += v
		}
		for lab, total := range perLab {
			m := MonthlyTotal{Month: month, Lab: lab, Total: total}
			if monthTotal > 0 {
				m.Share = total / monthTotal
			}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Lab < out[j].Lab
	})
	return out
}
