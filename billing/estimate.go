package billing

import (
	"fmt"
	"math"
)

// Estimate fills in the consumption of one meter from the average of its
// peers in the same consumption group. Only peers with a present,
// non-estimated value count; estimates never feed other estimates.
//
// The operation is user-triggered and may be invoked repeatedly: it always
// recomputes from the current peer state. When no peer has usable data the
// record is left untouched and a DataGapError is returned so the caller can
// surface the meter as blocking.
func Estimate(group []ConsumptionRecord, meterID int) error {
	target := -1
	for i := range group {
		if group[i].MeterID == meterID {
			target = i
			break
		}
	}
	if target == -1 {
		return fmt.Errorf("meter %d is not part of the consumption group", meterID)
	}

	var sum float64
	var count int
	for i := range group {
		if i == target {
			continue
		}
		if group[i].Consumption == nil || group[i].IsEstimated {
			continue
		}
		sum += *group[i].Consumption
		count++
	}

	if count == 0 {
		return &DataGapError{MeterID: meterID, Status: group[target].Status}
	}

	estimated := math.Round(sum / float64(count))
	group[target].Consumption = &estimated
	group[target].Status = StatusEstimated
	group[target].IsEstimated = true
	return nil
}
