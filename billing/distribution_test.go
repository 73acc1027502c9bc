package billing

import (
	"reflect"
	"testing"
)

func unit(id int, number string, area float64, persons int, vacant bool) UnitDistribution {
	return UnitDistribution{
		UnitID:       id,
		UnitNumber:   number,
		AreaSqm:      area,
		PersonsCount: persons,
		Vacant:       vacant,
	}
}

func itemTotal(alloc ItemAllocation) int64 {
	return alloc.BilledCents + alloc.LandlordCents
}

// Scenario: 1000.01 split over three equal 50 m2 units. Two units get
// 33334 cents, one gets 33333, the sum matches exactly.
func TestDistributeAreaExactCents(t *testing.T) {
	items := []CostItem{{ID: 1, Name: "heating", AnnualAmountCents: 100001, Key: KeyArea, Active: true}}
	units := []UnitDistribution{
		unit(1, "EG links", 50, 2, false),
		unit(2, "EG rechts", 50, 1, false),
		unit(3, "OG", 50, 3, false),
	}

	result := DistributeCosts(items, units, false)

	if len(result.Items) != 1 || len(result.Problems) != 0 {
		t.Fatalf("items/problems = %d/%d, want 1/0", len(result.Items), len(result.Problems))
	}

	alloc := result.Items[0]
	if itemTotal(alloc) != 100001 {
		t.Fatalf("total = %d, want 100001", itemTotal(alloc))
	}

	counts := map[int64]int{}
	for _, cents := range alloc.Allocations {
		counts[cents]++
	}
	if counts[33334] != 2 || counts[33333] != 1 {
		t.Errorf("allocations = %v, want two times 33334 and once 33333", alloc.Allocations)
	}
}

func TestDistributeExactSumProperty(t *testing.T) {
	units := []UnitDistribution{
		unit(1, "1", 37.5, 1, false),
		unit(2, "2", 61.2, 2, false),
		unit(3, "3", 88.9, 4, false),
		unit(4, "4", 45.1, 1, true),
		unit(5, "5", 120.0, 5, false),
	}

	amounts := []int64{1, 2, 99, 100, 10001, 123457, 99999999}
	keys := []DistributionKey{KeyArea, KeyPersons, KeyUnits}

	for _, key := range keys {
		for _, amount := range amounts {
			items := []CostItem{{ID: 7, Name: "test", AnnualAmountCents: amount, Key: key, Active: true}}

			for _, toLandlord := range []bool{false, true} {
				result := DistributeCosts(items, units, toLandlord)
				if len(result.Items) != 1 {
					t.Fatalf("key %s amount %d: no allocation", key, amount)
				}
				if got := itemTotal(result.Items[0]); got != amount {
					t.Errorf("key %s amount %d vacancy %v: allocated %d", key, amount, toLandlord, got)
				}
			}
		}
	}
}

func TestDistributeRemainderTieBreakByUnitID(t *testing.T) {
	// 100 cents over three equal units: 33 each plus one remainder cent,
	// which the lowest unit id wins on the fractional tie.
	items := []CostItem{{ID: 1, Name: "Hauswart", AnnualAmountCents: 100, Key: KeyUnits, Active: true}}
	units := []UnitDistribution{
		unit(3, "c", 50, 1, false),
		unit(1, "a", 50, 1, false),
		unit(2, "b", 50, 1, false),
	}

	result := DistributeCosts(items, units, false)

	want := map[int]int64{1: 34, 2: 33, 3: 33}
	if !reflect.DeepEqual(result.Items[0].Allocations, want) {
		t.Errorf("allocations = %v, want %v", result.Items[0].Allocations, want)
	}
}

// With vacancy costs on the landlord, tenants pay exactly the amount minus
// the vacant unit's theoretical full-base share; their own shares are not
// inflated.
func TestDistributeVacancyNeutralTotal(t *testing.T) {
	items := []CostItem{{ID: 1, Name: "Grundsteuer", AnnualAmountCents: 120000, Key: KeyArea, Active: true}}
	units := []UnitDistribution{
		unit(1, "1", 60, 2, false),
		unit(2, "2", 60, 0, true),
		unit(3, "3", 80, 3, false),
	}

	result := DistributeCosts(items, units, true)
	alloc := result.Items[0]

	// Full base is 200 m2: 36000 / 36000 / 48000.
	if alloc.Allocations[1] != 36000 || alloc.Allocations[3] != 48000 {
		t.Errorf("billed allocations = %v, want 36000 and 48000", alloc.Allocations)
	}
	if alloc.Withheld[2] != 36000 || alloc.LandlordCents != 36000 {
		t.Errorf("withheld = %v landlord = %d, want 36000", alloc.Withheld, alloc.LandlordCents)
	}
	if alloc.BilledCents != 84000 {
		t.Errorf("billed = %d, want 84000", alloc.BilledCents)
	}

	// Without the flag the vacant unit is billed normally.
	result = DistributeCosts(items, units, false)
	alloc = result.Items[0]
	if alloc.Allocations[2] != 36000 || alloc.LandlordCents != 0 {
		t.Errorf("vacant unit allocation = %v, landlord = %d", alloc.Allocations, alloc.LandlordCents)
	}
}

// Scenario: an area-keyed item with an all-zero base reports a problem for
// that item only; other items still compute.
func TestDistributeZeroDenominator(t *testing.T) {
	items := []CostItem{
		{ID: 1, Name: "broken", AnnualAmountCents: 5000, Key: KeyArea, Active: true},
		{ID: 2, Name: "fine", AnnualAmountCents: 5000, Key: KeyUnits, Active: true},
	}
	units := []UnitDistribution{
		unit(1, "1", 0, 1, false),
		unit(2, "2", 0, 2, false),
	}

	result := DistributeCosts(items, units, false)

	if len(result.Problems) != 1 {
		t.Fatalf("problems = %d, want 1", len(result.Problems))
	}
	if result.Problems[0].CostItemID != 1 || result.Problems[0].Key != KeyArea {
		t.Errorf("problem = %+v, want cost item 1 / key area", result.Problems[0])
	}
	if len(result.Items) != 1 || result.Items[0].CostItemID != 2 {
		t.Fatalf("surviving items = %+v, want only cost item 2", result.Items)
	}
	if itemTotal(result.Items[0]) != 5000 {
		t.Errorf("surviving item total = %d, want 5000", itemTotal(result.Items[0]))
	}
}

func TestDistributeConsumptionKey(t *testing.T) {
	items := []CostItem{{
		ID: 1, Name: "Wasser", AnnualAmountCents: 40000,
		Key: KeyConsumption, Group: GroupWater, Active: true,
	}}
	units := []UnitDistribution{
		{UnitID: 1, UnitNumber: "1", ConsumptionShares: map[ConsumptionGroup]float64{GroupWater: 25}},
		{UnitID: 2, UnitNumber: "2", ConsumptionShares: map[ConsumptionGroup]float64{GroupWater: 75}},
	}

	result := DistributeCosts(items, units, false)
	alloc := result.Items[0]

	if alloc.Allocations[1] != 10000 || alloc.Allocations[2] != 30000 {
		t.Errorf("allocations = %v, want 10000/30000", alloc.Allocations)
	}
}

// Consumption shares are renormalized over the run's unit set, so a group
// whose shares do not cover 100 percent still allocates the full amount.
func TestDistributeConsumptionKeyRenormalizes(t *testing.T) {
	items := []CostItem{{
		ID: 1, Name: "Heizung", AnnualAmountCents: 90000,
		Key: KeyConsumption, Group: GroupHeating, Active: true,
	}}
	units := []UnitDistribution{
		{UnitID: 1, UnitNumber: "1", ConsumptionShares: map[ConsumptionGroup]float64{GroupHeating: 20}},
		{UnitID: 2, UnitNumber: "2", ConsumptionShares: map[ConsumptionGroup]float64{GroupHeating: 40}},
	}

	result := DistributeCosts(items, units, false)
	alloc := result.Items[0]

	if alloc.Allocations[1] != 30000 || alloc.Allocations[2] != 60000 {
		t.Errorf("allocations = %v, want 30000/60000", alloc.Allocations)
	}
}

func TestDistributeConsumptionKeyNoShares(t *testing.T) {
	items := []CostItem{{
		ID: 1, Name: "Wasser", AnnualAmountCents: 40000,
		Key: KeyConsumption, Group: GroupWater, Active: true,
	}}
	units := []UnitDistribution{
		{UnitID: 1, UnitNumber: "1"},
		{UnitID: 2, UnitNumber: "2"},
	}

	result := DistributeCosts(items, units, false)

	if len(result.Problems) != 1 || len(result.Items) != 0 {
		t.Fatalf("problems/items = %d/%d, want 1/0", len(result.Problems), len(result.Items))
	}
}

func TestDistributeSkipsInactiveItems(t *testing.T) {
	items := []CostItem{
		{ID: 1, Name: "inactive", AnnualAmountCents: 1000, Key: KeyUnits, Active: false},
		{ID: 2, Name: "active", AnnualAmountCents: 1000, Key: KeyUnits, Active: true},
	}
	units := []UnitDistribution{unit(1, "1", 50, 1, false)}

	result := DistributeCosts(items, units, false)

	if len(result.Items) != 1 || result.Items[0].CostItemID != 2 {
		t.Errorf("items = %+v, want only cost item 2", result.Items)
	}
}

func TestDistributeIdempotent(t *testing.T) {
	items := []CostItem{
		{ID: 1, Name: "Versicherung", AnnualAmountCents: 123457, Key: KeyArea, Active: true},
		{ID: 2, Name: "Hauswart", AnnualAmountCents: 80000, Key: KeyPersons, Active: true},
	}
	units := []UnitDistribution{
		unit(1, "1", 37.5, 1, false),
		unit(2, "2", 61.2, 2, true),
		unit(3, "3", 88.9, 4, false),
	}

	first := DistributeCosts(items, units, true)
	second := DistributeCosts(items, units, true)

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated distribution with identical inputs differs")
	}

	firstSettle := Settle(first, units)
	secondSettle := Settle(second, units)
	if !reflect.DeepEqual(firstSettle, secondSettle) {
		t.Error("repeated settlement with identical inputs differs")
	}
}
