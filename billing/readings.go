package billing

import (
	"sort"
	"time"
)

// ResolveReadings selects the best start and end readings for one meter in
// the period and derives its consumption.
//
// The start value is the reading closest to the period start among those
// dated on or before it; the end value is the reading closest to the period
// end among those dated on or after it. When no such reading exists but the
// meter has readings at all, the chronologically first (resp. last) reading
// is used as a fallback. A fallback value is still reported as complete;
// the status only encodes whether a value could be produced at all.
//
// Consumption is end minus start, clamped to zero so that rollovers or
// entry errors never produce negative usage. It is nil (not zero) when
// either side is missing.
func ResolveReadings(meterID, unitID int, readings []Reading, p Period) ConsumptionRecord {
	rec := ConsumptionRecord{
		MeterID: meterID,
		UnitID:  unitID,
		Status:  StatusMissingBoth,
	}

	if len(readings) == 0 {
		return rec
	}

	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	start := closestBefore(sorted, p.Start)
	if start == nil {
		// No reading on or before the period start: the earliest
		// available reading stands in.
		start = &sorted[0]
	}

	end := closestAfter(sorted, p.End)
	if end == nil {
		end = &sorted[len(sorted)-1]
	}

	rec.StartDate, rec.StartValue = cloneReading(start)
	rec.EndDate, rec.EndValue = cloneReading(end)

	switch {
	case rec.StartValue == nil && rec.EndValue == nil:
		rec.Status = StatusMissingBoth
	case rec.StartValue == nil:
		rec.Status = StatusMissingStart
	case rec.EndValue == nil:
		rec.Status = StatusMissingEnd
	default:
		rec.Status = StatusComplete
		consumption := *rec.EndValue - *rec.StartValue
		if consumption < 0 {
			consumption = 0
		}
		rec.Consumption = &consumption
	}

	return rec
}

// closestBefore picks the reading with the smallest distance to target among
// readings dated on or before target. Input must be sorted ascending; on
// equal distance the earliest reading wins.
func closestBefore(sorted []Reading, target time.Time) *Reading {
	var best *Reading
	var bestDist time.Duration
	for i := range sorted {
		if sorted[i].Date.After(target) {
			break
		}
		dist := target.Sub(sorted[i].Date)
		if best == nil || dist < bestDist {
			best = &sorted[i]
			bestDist = dist
		}
	}
	return best
}

// closestAfter is the symmetric selection for the period end.
func closestAfter(sorted []Reading, target time.Time) *Reading {
	var best *Reading
	var bestDist time.Duration
	for i := range sorted {
		if sorted[i].Date.Before(target) {
			continue
		}
		dist := sorted[i].Date.Sub(target)
		if best == nil || dist < bestDist {
			best = &sorted[i]
			bestDist = dist
		}
	}
	return best
}

func cloneReading(r *Reading) (*time.Time, *float64) {
	if r == nil {
		return nil, nil
	}
	date := r.Date
	value := r.Value
	return &date, &value
}
