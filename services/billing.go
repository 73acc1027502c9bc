package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/skaiser/nebenkosten-billing/backend/billing"
	"github.com/skaiser/nebenkosten-billing/backend/models"
)

// SettlementService loads a building's data for a billing period, drives
// the pure billing engine and persists accepted results. All engine work is
// delegated to the billing package; this service only does I/O.
type SettlementService struct {
	db *sql.DB
}

func NewSettlementService(db *sql.DB) *SettlementService {
	return &SettlementService{db: db}
}

// RunOptions carries the user's per-run adjustments from the wizard.
type RunOptions struct {
	// Overrides maps meter id to a manually entered consumption value.
	Overrides map[int]float64
	// EstimateMeterIDs lists meters whose consumption should be filled
	// from the peer average of their group.
	EstimateMeterIDs []int
}

// RunProblem is a user-facing, recoverable problem found during a run.
type RunProblem struct {
	Type       string `json:"type"` // data_gap or invalid_share
	MeterID    int    `json:"meter_id,omitempty"`
	CostItemID int    `json:"cost_item_id,omitempty"`
	Message    string `json:"message"`
}

// RunResult is the complete draft of one settlement run. Nothing is
// persisted until the user accepts it via PersistRun.
type RunResult struct {
	BuildingID  int    `json:"building_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Currency    string `json:"currency"`

	Groups      map[billing.ConsumptionGroup][]billing.ConsumptionRecord `json:"consumption_groups"`
	Items       []billing.ItemAllocation                                 `json:"items"`
	Settlements []billing.UnitSettlement                                 `json:"settlements"`
	Problems    []RunProblem                                             `json:"problems"`
}

// RunSettlement executes one full engine pass for a building and period.
// It is side-effect-free and safe to call after every wizard edit.
func (ss *SettlementService) RunSettlement(buildingID int, start, end time.Time, opts RunOptions) (*RunResult, error) {
	log.Printf("[SETTLEMENT] Run for building %d, period %s to %s",
		buildingID, start.Format("2006-01-02"), end.Format("2006-01-02"))

	if end.Before(start) {
		return nil, fmt.Errorf("period end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	settings, err := ss.loadSettings(buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load billing settings: %v", err)
	}

	units, err := ss.loadUnits(buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %v", err)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("building %d has no units", buildingID)
	}

	costItems, err := ss.loadCostItems(buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost items: %v", err)
	}

	result := &RunResult{
		BuildingID:  buildingID,
		PeriodStart: start.Format("2006-01-02"),
		PeriodEnd:   end.Format("2006-01-02"),
		Currency:    settings.Currency,
		Groups:      make(map[billing.ConsumptionGroup][]billing.ConsumptionRecord),
	}

	period := billing.Period{Start: start, End: end}

	// Resolve consumption for every group that a consumption-keyed cost
	// item depends on.
	blockedGroups := make(map[billing.ConsumptionGroup]bool)
	for _, group := range neededGroups(costItems) {
		records, err := ss.resolveGroup(buildingID, group, period)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s meters: %v", group, err)
		}

		applyOverrides(records, opts.Overrides)

		for _, meterID := range opts.EstimateMeterIDs {
			if !groupHasMeter(records, meterID) {
				continue
			}
			if err := billing.Estimate(records, meterID); err != nil {
				result.Problems = append(result.Problems, RunProblem{
					Type:    "data_gap",
					MeterID: meterID,
					Message: err.Error(),
				})
			}
		}

		billing.RecalculateShares(records)

		for i := range records {
			if records[i].Consumption == nil {
				blockedGroups[group] = true
				gap := &billing.DataGapError{MeterID: records[i].MeterID, Status: records[i].Status}
				result.Problems = append(result.Problems, RunProblem{
					Type:    "data_gap",
					MeterID: records[i].MeterID,
					Message: gap.Error(),
				})
			}
		}

		result.Groups[group] = records
	}

	// A data gap blocks only the cost items of its group; everything else
	// still settles.
	engineItems := make([]billing.CostItem, 0, len(costItems))
	for _, item := range costItems {
		if item.Key == billing.KeyConsumption && blockedGroups[item.Group] {
			log.Printf("[SETTLEMENT] Cost item %d (%s) blocked by missing %s data", item.ID, item.Name, item.Group)
			continue
		}
		engineItems = append(engineItems, item)
	}

	engineUnits := buildUnitDistributions(units, result.Groups, period)

	dist := billing.DistributeCosts(engineItems, engineUnits, settings.VacancyCostsToLandlord)
	for _, problem := range dist.Problems {
		result.Problems = append(result.Problems, RunProblem{
			Type:       "invalid_share",
			CostItemID: problem.CostItemID,
			Message:    problem.Error(),
		})
	}

	result.Items = dist.Items
	result.Settlements = billing.Settle(dist, engineUnits)

	log.Printf("[SETTLEMENT] Run complete: %d items allocated, %d units settled, %d problems",
		len(result.Items), len(result.Settlements), len(result.Problems))

	return result, nil
}

// PersistRun writes the accepted run as one statement per unit.
func (ss *SettlementService) PersistRun(result *RunResult) ([]models.Statement, error) {
	tx, err := ss.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	statements := []models.Statement{}
	now := time.Now()

	for _, settlement := range result.Settlements {
		number := fmt.Sprintf("NK-%d-%d-%s", result.BuildingID, settlement.UnitID, now.Format("20060102150405"))

		res, err := tx.Exec(`
			INSERT INTO statements (
				statement_number, building_id, unit_id, period_start, period_end,
				total_allocated_cents, prepayments_cents, balance_cents, currency, status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'issued')
		`, number, result.BuildingID, settlement.UnitID, result.PeriodStart, result.PeriodEnd,
			settlement.TotalAllocatedCents, settlement.PrepaymentsCents, settlement.BalanceCents, result.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to insert statement: %v", err)
		}

		statementID, _ := res.LastInsertId()

		statement := models.Statement{
			ID:                  int(statementID),
			StatementNumber:     number,
			BuildingID:          result.BuildingID,
			UnitID:              settlement.UnitID,
			PeriodStart:         result.PeriodStart,
			PeriodEnd:           result.PeriodEnd,
			TotalAllocatedCents: settlement.TotalAllocatedCents,
			PrepaymentsCents:    settlement.PrepaymentsCents,
			BalanceCents:        settlement.BalanceCents,
			Currency:            result.Currency,
			Status:              "issued",
			GeneratedAt:         now,
		}

		for _, item := range result.Items {
			cents, billed := item.Allocations[settlement.UnitID]
			if !billed {
				continue
			}
			share := sharePercentOf(item, settlement.UnitID)
			if _, err := tx.Exec(`
				INSERT INTO statement_lines (
					statement_id, cost_item_id, description, distribution_key, share_percent, amount_cents
				) VALUES (?, ?, ?, ?, ?, ?)
			`, statementID, item.CostItemID, item.Name, string(item.Key), share, cents); err != nil {
				return nil, fmt.Errorf("failed to insert statement line: %v", err)
			}

			statement.Lines = append(statement.Lines, models.StatementLine{
				StatementID:     int(statementID),
				CostItemID:      item.CostItemID,
				Description:     item.Name,
				DistributionKey: string(item.Key),
				SharePercent:    share,
				AmountCents:     cents,
			})
		}

		statements = append(statements, statement)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[SETTLEMENT] Persisted %d statements for building %d", len(statements), result.BuildingID)
	return statements, nil
}

// sharePercentOf reports the unit's share of the item total, for display on
// the statement line.
func sharePercentOf(item billing.ItemAllocation, unitID int) float64 {
	if item.AnnualAmountCents == 0 {
		return 0
	}
	return 100 * float64(item.Allocations[unitID]) / float64(item.AnnualAmountCents)
}

func neededGroups(items []billing.CostItem) []billing.ConsumptionGroup {
	seen := make(map[billing.ConsumptionGroup]bool)
	groups := []billing.ConsumptionGroup{}
	for _, item := range items {
		if item.Key != billing.KeyConsumption || item.Group == "" {
			continue
		}
		if !seen[item.Group] {
			seen[item.Group] = true
			groups = append(groups, item.Group)
		}
	}
	return groups
}

func groupHasMeter(records []billing.ConsumptionRecord, meterID int) bool {
	for i := range records {
		if records[i].MeterID == meterID {
			return true
		}
	}
	return false
}

// applyOverrides replaces consumption values the user corrected by hand.
func applyOverrides(records []billing.ConsumptionRecord, overrides map[int]float64) {
	if len(overrides) == 0 {
		return
	}
	for i := range records {
		value, ok := overrides[records[i].MeterID]
		if !ok {
			continue
		}
		if value < 0 {
			value = 0
		}
		records[i].Consumption = &value
		records[i].Status = billing.StatusComplete
		records[i].IsEstimated = false
	}
}

// buildUnitDistributions merges unit attributes with the per-group
// consumption shares. A unit's share in a group is the sum over its meters.
func buildUnitDistributions(units []models.Unit, groups map[billing.ConsumptionGroup][]billing.ConsumptionRecord, period billing.Period) []billing.UnitDistribution {
	distributions := make([]billing.UnitDistribution, 0, len(units))
	months := int64(monthsInPeriod(period.Start, period.End))

	for _, u := range units {
		shares := make(map[billing.ConsumptionGroup]float64)
		for group, records := range groups {
			for i := range records {
				if records[i].UnitID == u.ID {
					shares[group] += records[i].SharePercent
				}
			}
		}

		prepayments := int64(0)
		if !u.IsVacant {
			prepayments = u.MonthlyPrepaymentCents * months
		}

		distributions = append(distributions, billing.UnitDistribution{
			UnitID:            u.ID,
			UnitNumber:        u.UnitNumber,
			AreaSqm:           u.AreaSqm,
			PersonsCount:      u.PersonsCount,
			ConsumptionShares: shares,
			PrepaymentsCents:  prepayments,
			Vacant:            u.IsVacant,
		})
	}

	return distributions
}

// monthsInPeriod counts calendar months touched by the period, inclusive.
// A full year is 12; prepayments are billed per started month.
func monthsInPeriod(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
	if months < 1 {
		months = 1
	}
	return months
}

func (ss *SettlementService) loadSettings(buildingID int) (*models.BillingSettings, error) {
	var s models.BillingSettings
	var vacancy int
	err := ss.db.QueryRow(`
		SELECT id, building_id, vacancy_costs_to_landlord, currency,
		       COALESCE(sender_name, ''), COALESCE(sender_address, ''), COALESCE(sender_city, ''),
		       COALESCE(sender_zip, ''), COALESCE(sender_country, ''),
		       COALESCE(bank_name, ''), COALESCE(bank_iban, ''), COALESCE(bank_account_holder, '')
		FROM billing_settings WHERE building_id = ?
	`, buildingID).Scan(
		&s.ID, &s.BuildingID, &vacancy, &s.Currency,
		&s.SenderName, &s.SenderAddress, &s.SenderCity, &s.SenderZip, &s.SenderCountry,
		&s.BankName, &s.BankIBAN, &s.BankAccountHolder,
	)

	if err == sql.ErrNoRows {
		// Sensible defaults when the building was never configured.
		return &models.BillingSettings{
			BuildingID:             buildingID,
			VacancyCostsToLandlord: true,
			Currency:               "EUR",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s.VacancyCostsToLandlord = vacancy == 1
	return &s, nil
}

func (ss *SettlementService) loadUnits(buildingID int) ([]models.Unit, error) {
	rows, err := ss.db.Query(`
		SELECT id, building_id, unit_number, COALESCE(floor, ''), area_sqm, persons_count,
		       COALESCE(occupant_name, ''), monthly_prepayment_cents, is_vacant
		FROM units WHERE building_id = ?
		ORDER BY unit_number
	`, buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := []models.Unit{}
	for rows.Next() {
		var u models.Unit
		var vacant int
		if err := rows.Scan(&u.ID, &u.BuildingID, &u.UnitNumber, &u.Floor, &u.AreaSqm,
			&u.PersonsCount, &u.OccupantName, &u.MonthlyPrepaymentCents, &vacant); err != nil {
			continue
		}
		u.IsVacant = vacant == 1
		units = append(units, u)
	}

	return units, rows.Err()
}

func (ss *SettlementService) loadCostItems(buildingID int) ([]billing.CostItem, error) {
	rows, err := ss.db.Query(`
		SELECT id, name, annual_amount_cents, distribution_key, COALESCE(consumption_group, ''), is_active
		FROM cost_items
		WHERE building_id = ? AND is_active = 1
		ORDER BY name
	`, buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []billing.CostItem{}
	for rows.Next() {
		var id int
		var name, rawKey, rawGroup string
		var amount int64
		var active int
		if err := rows.Scan(&id, &name, &amount, &rawKey, &rawGroup, &active); err != nil {
			continue
		}

		key, err := billing.ParseDistributionKey(rawKey)
		if err != nil {
			log.Printf("[SETTLEMENT] Skipping cost item %d: %v", id, err)
			continue
		}

		items = append(items, billing.CostItem{
			ID:                id,
			Name:              name,
			AnnualAmountCents: amount,
			Key:               key,
			Group:             billing.ConsumptionGroup(rawGroup),
			Active:            active == 1,
		})
	}

	return items, rows.Err()
}

// resolveGroup loads every unit-assigned meter of the group's types and
// resolves its readings for the period. Building-level meters without a
// unit cannot be distributed and are left out.
func (ss *SettlementService) resolveGroup(buildingID int, group billing.ConsumptionGroup, period billing.Period) ([]billing.ConsumptionRecord, error) {
	var types []string
	switch group {
	case billing.GroupHeating:
		types = []string{"heating", "gas"}
	case billing.GroupWater:
		types = []string{"water"}
	case billing.GroupElectricity:
		types = []string{"electricity"}
	default:
		return nil, fmt.Errorf("unknown consumption group %q", group)
	}

	query := `
		SELECT id, name, unit_id FROM meters
		WHERE building_id = ? AND is_active = 1 AND unit_id IS NOT NULL
		AND meter_type IN (?` + repeatPlaceholder(len(types)-1) + `)
		ORDER BY id
	`
	args := []interface{}{buildingID}
	for _, t := range types {
		args = append(args, t)
	}

	rows, err := ss.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type meterRow struct {
		id     int
		name   string
		unitID int
	}
	meters := []meterRow{}
	for rows.Next() {
		var m meterRow
		if err := rows.Scan(&m.id, &m.name, &m.unitID); err != nil {
			continue
		}
		meters = append(meters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]billing.ConsumptionRecord, 0, len(meters))
	for _, m := range meters {
		readings, err := ss.loadReadings(m.id)
		if err != nil {
			return nil, err
		}

		rec := billing.ResolveReadings(m.id, m.unitID, readings, period)
		rec.MeterName = m.name
		records = append(records, rec)
	}

	return records, nil
}

func (ss *SettlementService) loadReadings(meterID int) ([]billing.Reading, error) {
	rows, err := ss.db.Query(`
		SELECT reading_date, value FROM meter_readings
		WHERE meter_id = ?
		ORDER BY reading_date
	`, meterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []billing.Reading{}
	for rows.Next() {
		var r billing.Reading
		if err := rows.Scan(&r.Date, &r.Value); err != nil {
			continue
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
