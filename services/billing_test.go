package services

import (
	"testing"
	"time"

	"github.com/skaiser/nebenkosten-billing/backend/billing"
	"github.com/skaiser/nebenkosten-billing/backend/models"
)

func TestMonthsInPeriod(t *testing.T) {
	cases := []struct {
		name  string
		start string
		end   string
		want  int
	}{
		{"full year", "2025-01-01", "2025-12-31", 12},
		{"single month", "2025-03-01", "2025-03-31", 1},
		{"half year", "2025-07-01", "2025-12-31", 6},
		{"year boundary", "2024-11-01", "2025-02-28", 4},
		{"same day", "2025-06-15", "2025-06-15", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, _ := time.Parse("2006-01-02", tc.start)
			end, _ := time.Parse("2006-01-02", tc.end)
			if got := monthsInPeriod(start, end); got != tc.want {
				t.Errorf("monthsInPeriod(%s, %s) = %d, want %d", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestNeededGroups(t *testing.T) {
	items := []billing.CostItem{
		{ID: 1, Key: billing.KeyArea},
		{ID: 2, Key: billing.KeyConsumption, Group: billing.GroupHeating},
		{ID: 3, Key: billing.KeyConsumption, Group: billing.GroupWater},
		{ID: 4, Key: billing.KeyConsumption, Group: billing.GroupHeating},
		{ID: 5, Key: billing.KeyPersons},
	}

	groups := neededGroups(items)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0] != billing.GroupHeating || groups[1] != billing.GroupWater {
		t.Errorf("unexpected groups: %v", groups)
	}
}

func TestNeededGroupsNoConsumptionItems(t *testing.T) {
	items := []billing.CostItem{
		{ID: 1, Key: billing.KeyArea},
		{ID: 2, Key: billing.KeyUnits},
	}
	if groups := neededGroups(items); len(groups) != 0 {
		t.Errorf("expected no groups, got %v", groups)
	}
}

func TestApplyOverrides(t *testing.T) {
	missing := billing.ConsumptionRecord{MeterID: 1, Status: billing.StatusMissingBoth}
	estimated := 42.0
	records := []billing.ConsumptionRecord{
		missing,
		{MeterID: 2, Consumption: &estimated, Status: billing.StatusEstimated, IsEstimated: true},
	}

	applyOverrides(records, map[int]float64{1: 120.5, 2: 80})

	if records[0].Consumption == nil || *records[0].Consumption != 120.5 {
		t.Errorf("override not applied to meter 1: %+v", records[0])
	}
	if records[0].Status != billing.StatusComplete {
		t.Errorf("expected complete status after override, got %s", records[0].Status)
	}
	if *records[1].Consumption != 80 || records[1].IsEstimated {
		t.Errorf("override should replace estimate: %+v", records[1])
	}
}

func TestApplyOverridesClampsNegative(t *testing.T) {
	records := []billing.ConsumptionRecord{{MeterID: 7}}
	applyOverrides(records, map[int]float64{7: -10})

	if records[0].Consumption == nil || *records[0].Consumption != 0 {
		t.Errorf("negative override should clamp to zero, got %+v", records[0].Consumption)
	}
}

func TestApplyOverridesIgnoresUnknownMeters(t *testing.T) {
	records := []billing.ConsumptionRecord{{MeterID: 1}}
	applyOverrides(records, map[int]float64{99: 50})

	if records[0].Consumption != nil {
		t.Errorf("override for unknown meter must not touch other records")
	}
}

func TestBuildUnitDistributions(t *testing.T) {
	start, _ := time.Parse("2006-01-02", "2025-01-01")
	end, _ := time.Parse("2006-01-02", "2025-12-31")
	period := billing.Period{Start: start, End: end}

	units := []models.Unit{
		{ID: 1, UnitNumber: "EG links", AreaSqm: 60, PersonsCount: 2, MonthlyPrepaymentCents: 15000},
		{ID: 2, UnitNumber: "OG rechts", AreaSqm: 80, PersonsCount: 3, MonthlyPrepaymentCents: 20000, IsVacant: true},
	}

	groups := map[billing.ConsumptionGroup][]billing.ConsumptionRecord{
		billing.GroupHeating: {
			{MeterID: 10, UnitID: 1, SharePercent: 30},
			{MeterID: 11, UnitID: 1, SharePercent: 10},
			{MeterID: 12, UnitID: 2, SharePercent: 60},
		},
	}

	dists := buildUnitDistributions(units, groups, period)
	if len(dists) != 2 {
		t.Fatalf("expected 2 distributions, got %d", len(dists))
	}

	// Two heating meters on unit 1 sum their shares
	if got := dists[0].ConsumptionShares[billing.GroupHeating]; got != 40 {
		t.Errorf("unit 1 heating share = %.1f, want 40", got)
	}
	if got := dists[1].ConsumptionShares[billing.GroupHeating]; got != 60 {
		t.Errorf("unit 2 heating share = %.1f, want 60", got)
	}

	// Occupied unit prepays 12 months
	if dists[0].PrepaymentsCents != 15000*12 {
		t.Errorf("unit 1 prepayments = %d, want %d", dists[0].PrepaymentsCents, 15000*12)
	}

	// Vacant units accrue no prepayments
	if dists[1].PrepaymentsCents != 0 {
		t.Errorf("vacant unit prepayments = %d, want 0", dists[1].PrepaymentsCents)
	}
	if !dists[1].Vacant {
		t.Error("vacancy flag not carried over")
	}
}

func TestSharePercentOf(t *testing.T) {
	item := billing.ItemAllocation{
		AnnualAmountCents: 100000,
		Allocations:       map[int]int64{1: 25000, 2: 75000},
	}

	if got := sharePercentOf(item, 1); got != 25 {
		t.Errorf("share of unit 1 = %.2f, want 25", got)
	}
	if got := sharePercentOf(item, 2); got != 75 {
		t.Errorf("share of unit 2 = %.2f, want 75", got)
	}
	if got := sharePercentOf(billing.ItemAllocation{}, 1); got != 0 {
		t.Errorf("zero amount item share = %.2f, want 0", got)
	}
}

func TestGroupHasMeter(t *testing.T) {
	records := []billing.ConsumptionRecord{{MeterID: 1}, {MeterID: 5}}
	if !groupHasMeter(records, 5) {
		t.Error("expected meter 5 to be found")
	}
	if groupHasMeter(records, 9) {
		t.Error("meter 9 must not be found")
	}
}
