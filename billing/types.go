// Package billing implements the operating-cost settlement engine:
// meter reading resolution, consumption estimation and shares, cost
// distribution with exact-cent rounding, and per-unit settlement.
//
// Everything in this package is a pure function of its inputs. The engine
// performs no I/O and keeps no state between calls, so it can be re-run on
// every user edit with bit-identical results for identical inputs. Loading
// inputs and persisting accepted results is the caller's job (see
// services.SettlementService).
package billing

import (
	"fmt"
	"time"
)

// Period is the billing period. Start and End are inclusive calendar dates.
type Period struct {
	Start time.Time
	End   time.Time
}

// Reading is a single cumulative meter reading.
type Reading struct {
	Date  time.Time
	Value float64
}

// ReadingStatus describes how complete a meter's data is for the period.
type ReadingStatus string

const (
	StatusComplete     ReadingStatus = "complete"
	StatusMissingStart ReadingStatus = "missing_start"
	StatusMissingEnd   ReadingStatus = "missing_end"
	StatusMissingBoth  ReadingStatus = "missing_both"
	StatusEstimated    ReadingStatus = "estimated"
)

// ConsumptionRecord is the resolved consumption of one meter for one billing
// run. Records are working values: the estimator and share calculator update
// them in place, and they are discarded when the run ends.
type ConsumptionRecord struct {
	MeterID   int    `json:"meter_id"`
	UnitID    int    `json:"unit_id"`
	MeterName string `json:"meter_name,omitempty"`

	StartDate  *time.Time `json:"start_date"`
	StartValue *float64   `json:"start_value"`
	EndDate    *time.Time `json:"end_date"`
	EndValue   *float64   `json:"end_value"`

	// Consumption is nil when no value could be derived. Never negative.
	Consumption *float64      `json:"consumption"`
	Status      ReadingStatus `json:"status"`
	IsEstimated bool          `json:"is_estimated"`

	SharePercent float64 `json:"consumption_share_percent"`
}

// DistributionKey selects how a cost item is split across units.
type DistributionKey string

const (
	KeyArea        DistributionKey = "area"
	KeyPersons     DistributionKey = "persons"
	KeyUnits       DistributionKey = "units"
	KeyConsumption DistributionKey = "consumption"
)

// ParseDistributionKey validates a raw key string.
func ParseDistributionKey(s string) (DistributionKey, error) {
	switch DistributionKey(s) {
	case KeyArea, KeyPersons, KeyUnits, KeyConsumption:
		return DistributionKey(s), nil
	}
	return "", fmt.Errorf("unknown distribution key %q", s)
}

// ConsumptionGroup names the set of meters feeding one consumption-keyed
// cost item. Heating items are fed by heating and gas meters.
type ConsumptionGroup string

const (
	GroupHeating     ConsumptionGroup = "heating"
	GroupWater       ConsumptionGroup = "water"
	GroupElectricity ConsumptionGroup = "electricity"
)

// GroupForMeterType maps a meter type to its consumption group.
func GroupForMeterType(meterType string) ConsumptionGroup {
	switch meterType {
	case "heating", "gas":
		return GroupHeating
	case "water":
		return GroupWater
	case "electricity":
		return GroupElectricity
	}
	return ""
}

// CostItem is one annual cost position to be distributed. Amounts are
// integer cents; floats never enter the money path.
type CostItem struct {
	ID                int
	Name              string
	AnnualAmountCents int64
	Key               DistributionKey
	// Group is only consulted for consumption-keyed items.
	Group  ConsumptionGroup
	Active bool
}

// UnitDistribution carries one unit's allocation attributes for a run.
type UnitDistribution struct {
	UnitID       int
	UnitNumber   string
	AreaSqm      float64
	PersonsCount int
	// ConsumptionShares holds the unit's share percent per consumption
	// group, as produced by RecalculateShares.
	ConsumptionShares map[ConsumptionGroup]float64
	PrepaymentsCents  int64
	Vacant            bool
}
