package billing

// RecalculateShares recomputes every record's share of the group total.
// Shares always sum to 100 when at least one consumption value is present,
// and are all zero otherwise. The calculation is run from scratch after
// every resolution, estimation or manual edit; shares are never maintained
// incrementally.
func RecalculateShares(group []ConsumptionRecord) {
	var total float64
	for i := range group {
		if group[i].Consumption != nil {
			total += *group[i].Consumption
		}
	}

	for i := range group {
		if total > 0 && group[i].Consumption != nil {
			group[i].SharePercent = 100 * *group[i].Consumption / total
		} else {
			group[i].SharePercent = 0
		}
	}
}
