package billing

// UnitSettlement nets one unit's allocations against its prepayments.
// A positive balance is a credit owed to the tenant, a negative balance is
// the amount the tenant still owes.
type UnitSettlement struct {
	UnitID              int    `json:"unit_id"`
	UnitNumber          string `json:"unit_number"`
	TotalAllocatedCents int64  `json:"total_allocated_cents"`
	PrepaymentsCents    int64  `json:"prepayments_cents"`
	BalanceCents        int64  `json:"balance_cents"`
}

// Settle aggregates the distribution result into one settlement per unit.
// Vacancy handling has already happened in DistributeCosts, so this is pure
// summation.
func Settle(dist *DistributionResult, units []UnitDistribution) []UnitSettlement {
	settlements := make([]UnitSettlement, 0, len(units))

	for _, u := range units {
		var total int64
		for i := range dist.Items {
			if cents, ok := dist.Items[i].Allocations[u.UnitID]; ok {
				total += cents
			}
		}

		settlements = append(settlements, UnitSettlement{
			UnitID:              u.UnitID,
			UnitNumber:          u.UnitNumber,
			TotalAllocatedCents: total,
			PrepaymentsCents:    u.PrepaymentsCents,
			BalanceCents:        u.PrepaymentsCents - total,
		})
	}

	return settlements
}
