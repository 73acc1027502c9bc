package billing

import (
	"fmt"
	"math"
	"sort"
)

// ItemAllocation is the exact-cent outcome of distributing one cost item.
// Allocations holds the cents billed per unit; Withheld holds the cents of
// vacant units absorbed by the landlord. Their sums always add up to
// AnnualAmountCents.
type ItemAllocation struct {
	CostItemID        int             `json:"cost_item_id"`
	Name              string          `json:"name"`
	Key               DistributionKey `json:"distribution_key"`
	AnnualAmountCents int64           `json:"annual_amount_cents"`

	Allocations map[int]int64 `json:"allocations"`
	Withheld    map[int]int64 `json:"withheld,omitempty"`

	BilledCents   int64 `json:"billed_cents"`
	LandlordCents int64 `json:"landlord_cents"`
}

// DistributionResult is the output of DistributeCosts. Items only contains
// cost items that could be allocated; Problems lists the ones that could
// not, without aborting the rest.
type DistributionResult struct {
	Items    []ItemAllocation
	Problems []*InvalidShareError
}

// AllocatedCents returns the billed cents for one unit and cost item.
func (r *DistributionResult) AllocatedCents(unitID, costItemID int) int64 {
	for i := range r.Items {
		if r.Items[i].CostItemID == costItemID {
			return r.Items[i].Allocations[unitID]
		}
	}
	return 0
}

// DistributeCosts splits every active cost item across the units according
// to its distribution key.
//
// Vacant units always take part in the distribution base, so occupied units
// are never billed an inflated share. With vacancyCostsToLandlord set, the
// cents computed for a vacant unit are withheld from billing and absorbed
// by the landlord; otherwise vacant units are billed like any other unit.
//
// Cents are apportioned with the largest-remainder method: every unit gets
// the floor of its proportional share, then the leftover cents go one by
// one to the units with the largest fractional remainder, ties broken by
// ascending unit id. The allocations of an item therefore sum to its annual
// amount exactly, with no drift.
func DistributeCosts(items []CostItem, units []UnitDistribution, vacancyCostsToLandlord bool) *DistributionResult {
	result := &DistributionResult{}

	for _, item := range items {
		if !item.Active {
			continue
		}

		weights := make([]float64, len(units))
		var denominator float64
		for i, u := range units {
			w := unitWeight(item, u)
			weights[i] = w
			denominator += w
		}

		if denominator <= 0 {
			result.Problems = append(result.Problems, &InvalidShareError{
				CostItemID:   item.ID,
				CostItemName: item.Name,
				Key:          item.Key,
			})
			continue
		}

		cents := apportion(item.AnnualAmountCents, units, weights, denominator)

		alloc := ItemAllocation{
			CostItemID:        item.ID,
			Name:              item.Name,
			Key:               item.Key,
			AnnualAmountCents: item.AnnualAmountCents,
			Allocations:       make(map[int]int64, len(units)),
		}

		var total int64
		for i, u := range units {
			total += cents[i]
			if u.Vacant && vacancyCostsToLandlord {
				if alloc.Withheld == nil {
					alloc.Withheld = make(map[int]int64)
				}
				alloc.Withheld[u.UnitID] = cents[i]
				alloc.LandlordCents += cents[i]
			} else {
				alloc.Allocations[u.UnitID] = cents[i]
				alloc.BilledCents += cents[i]
			}
		}

		// No user input can legally get here; a mismatch is a defect in
		// the apportionment itself.
		if total != item.AnnualAmountCents {
			panic(fmt.Sprintf("billing: rounding invariant violated for cost item %d: allocated %d of %d cents",
				item.ID, total, item.AnnualAmountCents))
		}

		result.Items = append(result.Items, alloc)
	}

	return result
}

func unitWeight(item CostItem, u UnitDistribution) float64 {
	switch item.Key {
	case KeyArea:
		return u.AreaSqm
	case KeyPersons:
		return float64(u.PersonsCount)
	case KeyUnits:
		return 1
	case KeyConsumption:
		return u.ConsumptionShares[item.Group]
	}
	return 0
}

// apportion distributes amount cents proportionally to weights using the
// largest-remainder (Hamilton) method.
func apportion(amount int64, units []UnitDistribution, weights []float64, denominator float64) []int64 {
	cents := make([]int64, len(units))
	fractions := make([]float64, len(units))

	var floored int64
	for i := range units {
		exact := float64(amount) * weights[i] / denominator
		cents[i] = int64(math.Floor(exact))
		fractions[i] = exact - float64(cents[i])
		floored += cents[i]
	}

	remainder := amount - floored
	if remainder <= 0 {
		return cents
	}

	order := make([]int, len(units))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if fractions[ia] != fractions[ib] {
			return fractions[ia] > fractions[ib]
		}
		return units[ia].UnitID < units[ib].UnitID
	})

	for i := int64(0); i < remainder; i++ {
		cents[order[int(i)%len(order)]]++
	}

	return cents
}
