package billing

import "testing"

func TestSettleNetsPrepayments(t *testing.T) {
	items := []CostItem{
		{ID: 1, Name: "Heizung", AnnualAmountCents: 60000, Key: KeyArea, Active: true},
		{ID: 2, Name: "Hauswart", AnnualAmountCents: 30000, Key: KeyUnits, Active: true},
	}
	units := []UnitDistribution{
		{UnitID: 1, UnitNumber: "EG", AreaSqm: 50, PrepaymentsCents: 50000},
		{UnitID: 2, UnitNumber: "OG", AreaSqm: 100, PrepaymentsCents: 50000},
	}

	dist := DistributeCosts(items, units, false)
	settlements := Settle(dist, units)

	if len(settlements) != 2 {
		t.Fatalf("settlements = %d, want 2", len(settlements))
	}

	// Unit 1: 20000 (area) + 15000 (units) = 35000 -> credit 15000.
	if settlements[0].TotalAllocatedCents != 35000 {
		t.Errorf("unit 1 allocated = %d, want 35000", settlements[0].TotalAllocatedCents)
	}
	if settlements[0].BalanceCents != 15000 {
		t.Errorf("unit 1 balance = %d, want 15000 (credit)", settlements[0].BalanceCents)
	}

	// Unit 2: 40000 + 15000 = 55000 -> owes 5000.
	if settlements[1].TotalAllocatedCents != 55000 {
		t.Errorf("unit 2 allocated = %d, want 55000", settlements[1].TotalAllocatedCents)
	}
	if settlements[1].BalanceCents != -5000 {
		t.Errorf("unit 2 balance = %d, want -5000 (owed by tenant)", settlements[1].BalanceCents)
	}
}

// A vacant unit whose costs the landlord absorbs ends up with no billed
// allocation; its settlement reflects only its own prepayments.
func TestSettleVacantUnit(t *testing.T) {
	items := []CostItem{{ID: 1, Name: "Heizung", AnnualAmountCents: 90000, Key: KeyUnits, Active: true}}
	units := []UnitDistribution{
		{UnitID: 1, UnitNumber: "1"},
		{UnitID: 2, UnitNumber: "2", Vacant: true},
		{UnitID: 3, UnitNumber: "3"},
	}

	dist := DistributeCosts(items, units, true)
	settlements := Settle(dist, units)

	if settlements[1].TotalAllocatedCents != 0 {
		t.Errorf("vacant unit allocated = %d, want 0", settlements[1].TotalAllocatedCents)
	}
	if settlements[0].TotalAllocatedCents != 30000 || settlements[2].TotalAllocatedCents != 30000 {
		t.Errorf("occupied units allocated = %d/%d, want 30000 each",
			settlements[0].TotalAllocatedCents, settlements[2].TotalAllocatedCents)
	}
}
