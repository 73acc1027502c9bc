package billing

import "fmt"

// DataGapError reports a meter without resolvable or estimable consumption.
// It is recoverable: it blocks only the cost items depending on the meter's
// group, not the whole run.
type DataGapError struct {
	MeterID int
	Status  ReadingStatus
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("meter %d has no usable consumption data (status %s)", e.MeterID, e.Status)
}

// InvalidShareError reports a cost item whose distribution base is zero
// across all units, e.g. an area-keyed item where every unit has 0 m2.
// The item gets no allocation; other items still compute.
type InvalidShareError struct {
	CostItemID   int
	CostItemName string
	Key          DistributionKey
}

func (e *InvalidShareError) Error() string {
	return fmt.Sprintf("cost item %q (id %d): distribution base for key %q is zero across all units",
		e.CostItemName, e.CostItemID, e.Key)
}
