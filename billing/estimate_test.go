package billing

import (
	"errors"
	"testing"
)

func recordWithConsumption(meterID, unitID int, consumption float64) ConsumptionRecord {
	c := consumption
	return ConsumptionRecord{
		MeterID:     meterID,
		UnitID:      unitID,
		Consumption: &c,
		Status:      StatusComplete,
	}
}

func TestEstimateUsesPeerAverage(t *testing.T) {
	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 80),
		recordWithConsumption(2, 11, 120),
		{MeterID: 3, UnitID: 12, Status: StatusMissingBoth},
	}

	if err := Estimate(group, 3); err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if group[2].Consumption == nil || *group[2].Consumption != 100 {
		t.Errorf("estimated consumption = %v, want 100", group[2].Consumption)
	}
	if group[2].Status != StatusEstimated || !group[2].IsEstimated {
		t.Errorf("status/flag = %s/%v, want estimated/true", group[2].Status, group[2].IsEstimated)
	}
}

func TestEstimateRoundsMean(t *testing.T) {
	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 100),
		recordWithConsumption(2, 11, 101),
		{MeterID: 3, UnitID: 12, Status: StatusMissingBoth},
	}

	if err := Estimate(group, 3); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if *group[2].Consumption != 101 { // round(100.5)
		t.Errorf("estimated consumption = %v, want 101", *group[2].Consumption)
	}
}

func TestEstimateIgnoresEstimatedPeers(t *testing.T) {
	estimated := recordWithConsumption(2, 11, 500)
	estimated.IsEstimated = true
	estimated.Status = StatusEstimated

	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 60),
		estimated,
		{MeterID: 3, UnitID: 12, Status: StatusMissingBoth},
	}

	if err := Estimate(group, 3); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if *group[2].Consumption != 60 {
		t.Errorf("estimated consumption = %v, want 60 (estimated peer must not count)", *group[2].Consumption)
	}
}

func TestEstimateNoPeerData(t *testing.T) {
	group := []ConsumptionRecord{
		{MeterID: 1, UnitID: 10, Status: StatusMissingBoth},
		{MeterID: 2, UnitID: 11, Status: StatusMissingBoth},
	}

	err := Estimate(group, 1)

	var gap *DataGapError
	if !errors.As(err, &gap) {
		t.Fatalf("err = %v, want DataGapError", err)
	}
	if gap.MeterID != 1 {
		t.Errorf("gap.MeterID = %d, want 1", gap.MeterID)
	}
	if group[0].Consumption != nil || group[0].IsEstimated {
		t.Error("record must stay unresolved when no peer has data")
	}
}

func TestEstimateUnknownMeter(t *testing.T) {
	group := []ConsumptionRecord{recordWithConsumption(1, 10, 50)}
	if err := Estimate(group, 99); err == nil {
		t.Fatal("expected error for meter outside the group")
	}
}

// Re-estimating after peer data changed must recompute from current state,
// not from any cached mean.
func TestEstimateRecomputesFromCurrentPeers(t *testing.T) {
	group := []ConsumptionRecord{
		recordWithConsumption(1, 10, 80),
		recordWithConsumption(2, 11, 120),
		{MeterID: 3, UnitID: 12, Status: StatusMissingBoth},
	}

	if err := Estimate(group, 3); err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	// Manual correction to a peer; the next estimate must follow it.
	corrected := 200.0
	group[0].Consumption = &corrected

	if err := Estimate(group, 3); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if *group[2].Consumption != 160 {
		t.Errorf("estimated consumption = %v, want 160", *group[2].Consumption)
	}
}
