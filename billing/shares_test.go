package billing

import (
	"math"
	"testing"
)

func TestRecalculateSharesSumTo100(t *testing.T) {
	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 30),
		recordWithConsumption(2, 11, 50),
		recordWithConsumption(3, 12, 20),
	}

	RecalculateShares(group)

	var sum float64
	for _, rec := range group {
		sum += rec.SharePercent
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("share sum = %v, want 100", sum)
	}
	if group[1].SharePercent != 50 {
		t.Errorf("share of meter 2 = %v, want 50", group[1].SharePercent)
	}
}

func TestRecalculateSharesMissingRecord(t *testing.T) {
	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 75),
		{MeterID: 2, UnitID: 11, Status: StatusMissingBoth},
		recordWithConsumption(3, 12, 25),
	}

	RecalculateShares(group)

	if group[0].SharePercent != 75 || group[2].SharePercent != 25 {
		t.Errorf("shares = %v/%v, want 75/25", group[0].SharePercent, group[2].SharePercent)
	}
	if group[1].SharePercent != 0 {
		t.Errorf("missing record share = %v, want 0", group[1].SharePercent)
	}
}

func TestRecalculateSharesNoData(t *testing.T) {
	group := []ConsumptionRecord{
		{MeterID: 1, UnitID: 10, Status: StatusMissingBoth},
		{MeterID: 2, UnitID: 11, Status: StatusMissingBoth},
	}

	RecalculateShares(group)

	for _, rec := range group {
		if rec.SharePercent != 0 {
			t.Errorf("meter %d share = %v, want 0", rec.MeterID, rec.SharePercent)
		}
	}
}

// Zero consumption across the whole group (all values present but 0) must
// not divide by zero.
func TestRecalculateSharesAllZero(t *testing.T) {
	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 0),
		recordWithConsumption(2, 11, 0),
	}

	RecalculateShares(group)

	if group[0].SharePercent != 0 || group[1].SharePercent != 0 {
		t.Errorf("shares = %v/%v, want 0/0", group[0].SharePercent, group[1].SharePercent)
	}
}

// Overriding a value and recalculating replaces the old shares entirely.
func TestRecalculateSharesAfterEdit(t *testing.T) {
	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 50),
		recordWithConsumption(2, 11, 50),
	}
	RecalculateShares(group)

	edited := 150.0
	group[0].Consumption = &edited
	RecalculateShares(group)

	if group[0].SharePercent != 75 || group[1].SharePercent != 25 {
		t.Errorf("shares = %v/%v, want 75/25", group[0].SharePercent, group[1].SharePercent)
	}
}
