package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/skaiser/nebenkosten-billing/backend/models"
	"github.com/skaiser/nebenkosten-billing/backend/services"
)

// BillingHandler drives the settlement wizard: preview a run, fill gaps by
// estimation, then generate and persist statements with PDFs.
type BillingHandler struct {
	db                *sql.DB
	settlementService *services.SettlementService
	pdfGenerator      *services.PDFGenerator
	statementsDir     string
}

func NewBillingHandler(db *sql.DB, settlementService *services.SettlementService, pdfGenerator *services.PDFGenerator, statementsDir string) *BillingHandler {
	return &BillingHandler{
		db:                db,
		settlementService: settlementService,
		pdfGenerator:      pdfGenerator,
		statementsDir:     statementsDir,
	}
}

func (h *BillingHandler) logToDatabase(action, details, ip string) {
	_, err := h.db.Exec(`
		INSERT INTO admin_logs (action, details, ip_address)
		VALUES (?, ?, ?)
	`, action, details, ip)
	if err != nil {
		log.Printf("[BILLING] Failed to write admin log: %v", err)
	}
}

type settlementRequest struct {
	BuildingID       int             `json:"building_id"`
	PeriodStart      string          `json:"period_start"`
	PeriodEnd        string          `json:"period_end"`
	Overrides        map[int]float64 `json:"overrides,omitempty"`
	EstimateMeterIDs []int           `json:"estimate_meter_ids,omitempty"`
}

func (h *BillingHandler) parseRunRequest(r *http.Request) (settlementRequest, time.Time, time.Time, error) {
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, time.Time{}, time.Time{}, fmt.Errorf("invalid request body")
	}
	if req.BuildingID == 0 {
		return req, time.Time{}, time.Time{}, fmt.Errorf("building_id is required")
	}

	start, err := time.Parse("2006-01-02", req.PeriodStart)
	if err != nil {
		return req, time.Time{}, time.Time{}, fmt.Errorf("period_start must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		return req, time.Time{}, time.Time{}, fmt.Errorf("period_end must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return req, time.Time{}, time.Time{}, fmt.Errorf("period_end is before period_start")
	}

	return req, start, end, nil
}

// Preview runs the full engine pass without persisting anything. The wizard
// calls this after every edit so the numbers on screen are always current.
func (h *BillingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	req, start, end, err := h.parseRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.settlementService.RunSettlement(req.BuildingID, start, end, services.RunOptions{
		Overrides:        req.Overrides,
		EstimateMeterIDs: req.EstimateMeterIDs,
	})
	if err != nil {
		log.Printf("[BILLING] Preview failed: %v", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Estimate fills the named meters from their group peer average and returns
// the recomputed preview.
func (h *BillingHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	req, start, end, err := h.parseRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.EstimateMeterIDs) == 0 {
		http.Error(w, "estimate_meter_ids is required", http.StatusBadRequest)
		return
	}

	result, err := h.settlementService.RunSettlement(req.BuildingID, start, end, services.RunOptions{
		Overrides:        req.Overrides,
		EstimateMeterIDs: req.EstimateMeterIDs,
	})
	if err != nil {
		log.Printf("[BILLING] Estimate failed: %v", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Generate persists the run as one statement per unit and renders PDFs.
func (h *BillingHandler) Generate(w http.ResponseWriter, r *http.Request) {
	req, start, end, err := h.parseRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.settlementService.RunSettlement(req.BuildingID, start, end, services.RunOptions{
		Overrides:        req.Overrides,
		EstimateMeterIDs: req.EstimateMeterIDs,
	})
	if err != nil {
		log.Printf("[BILLING] Generate failed: %v", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	statements, err := h.settlementService.PersistRun(result)
	if err != nil {
		log.Printf("[BILLING] Failed to persist statements: %v", err)
		http.Error(w, "Failed to save statements", http.StatusInternalServerError)
		return
	}

	settings := h.loadSettingsOrDefaults(req.BuildingID)

	for i := range statements {
		unit, err := h.loadUnit(statements[i].UnitID)
		if err != nil {
			log.Printf("[BILLING] Skipping PDF for statement %s: %v", statements[i].StatementNumber, err)
			continue
		}

		filename, err := h.pdfGenerator.GenerateStatementPDF(statements[i], unit, settings)
		if err != nil {
			log.Printf("[BILLING] PDF generation failed for %s: %v", statements[i].StatementNumber, err)
			continue
		}

		statements[i].PDFPath = filename
		h.db.Exec("UPDATE statements SET pdf_path = ? WHERE id = ?", filename, statements[i].ID)
	}

	h.logToDatabase("Statements Generated",
		fmt.Sprintf("Building %d, period %s to %s, %d statements", req.BuildingID, req.PeriodStart, req.PeriodEnd, len(statements)),
		r.RemoteAddr)

	response := map[string]interface{}{
		"statements": statements,
		"problems":   result.Problems,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (h *BillingHandler) loadUnit(unitID int) (models.Unit, error) {
	var u models.Unit
	err := h.db.QueryRow(`
		SELECT id, building_id, unit_number, COALESCE(floor, ''), area_sqm, persons_count,
		       COALESCE(occupant_name, ''), COALESCE(occupant_email, ''), COALESCE(occupant_phone, ''),
		       monthly_prepayment_cents, is_vacant, COALESCE(notes, ''), created_at, updated_at
		FROM units WHERE id = ?
	`, unitID).Scan(&u.ID, &u.BuildingID, &u.UnitNumber, &u.Floor, &u.AreaSqm,
		&u.PersonsCount, &u.OccupantName, &u.OccupantEmail, &u.OccupantPhone,
		&u.MonthlyPrepaymentCents, &u.IsVacant, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (h *BillingHandler) loadSettingsOrDefaults(buildingID int) models.BillingSettings {
	var s models.BillingSettings
	err := h.db.QueryRow(`
		SELECT id, building_id, vacancy_costs_to_landlord, COALESCE(currency, 'EUR'),
		       COALESCE(sender_name, ''), COALESCE(sender_address, ''), COALESCE(sender_city, ''),
		       COALESCE(sender_zip, ''), COALESCE(sender_country, ''),
		       COALESCE(bank_name, ''), COALESCE(bank_iban, ''), COALESCE(bank_account_holder, '')
		FROM billing_settings WHERE building_id = ?
	`, buildingID).Scan(&s.ID, &s.BuildingID, &s.VacancyCostsToLandlord, &s.Currency,
		&s.SenderName, &s.SenderAddress, &s.SenderCity, &s.SenderZip, &s.SenderCountry,
		&s.BankName, &s.BankIBAN, &s.BankAccountHolder)

	if err != nil {
		s.BuildingID = buildingID
		s.VacancyCostsToLandlord = true
		s.Currency = "EUR"
	}
	return s
}

func (h *BillingHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	buildingID, err := strconv.Atoi(vars["buildingId"])
	if err != nil {
		http.Error(w, "Invalid building ID", http.StatusBadRequest)
		return
	}

	settings := h.loadSettingsOrDefaults(buildingID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

func (h *BillingHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	buildingID, err := strconv.Atoi(vars["buildingId"])
	if err != nil {
		http.Error(w, "Invalid building ID", http.StatusBadRequest)
		return
	}

	var s models.BillingSettings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if s.Currency == "" {
		s.Currency = "EUR"
	}
	s.BuildingID = buildingID

	_, err = h.db.Exec(`
		INSERT INTO billing_settings (
			building_id, vacancy_costs_to_landlord, currency,
			sender_name, sender_address, sender_city, sender_zip, sender_country,
			bank_name, bank_iban, bank_account_holder
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(building_id) DO UPDATE SET
			vacancy_costs_to_landlord = excluded.vacancy_costs_to_landlord,
			currency = excluded.currency,
			sender_name = excluded.sender_name,
			sender_address = excluded.sender_address,
			sender_city = excluded.sender_city,
			sender_zip = excluded.sender_zip,
			sender_country = excluded.sender_country,
			bank_name = excluded.bank_name,
			bank_iban = excluded.bank_iban,
			bank_account_holder = excluded.bank_account_holder,
			updated_at = CURRENT_TIMESTAMP
	`, s.BuildingID, s.VacancyCostsToLandlord, s.Currency,
		s.SenderName, s.SenderAddress, s.SenderCity, s.SenderZip, s.SenderCountry,
		s.BankName, s.BankIBAN, s.BankAccountHolder)

	if err != nil {
		log.Printf("[BILLING] Failed to save settings: %v", err)
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *BillingHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT s.id, s.statement_number, s.building_id, s.unit_id, s.period_start, s.period_end,
		       s.total_allocated_cents, s.prepayments_cents, s.balance_cents,
		       COALESCE(s.currency, 'EUR'), COALESCE(s.status, 'draft'),
		       COALESCE(s.pdf_path, ''), s.generated_at
		FROM statements s`
	args := []interface{}{}

	if buildingID := r.URL.Query().Get("building_id"); buildingID != "" {
		query += " WHERE s.building_id = ?"
		args = append(args, buildingID)
	}
	query += " ORDER BY s.generated_at DESC, s.id DESC LIMIT 500"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		log.Printf("[BILLING] Failed to list statements: %v", err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]interface{}{})
		return
	}
	defer rows.Close()

	statements := []models.Statement{}
	for rows.Next() {
		var s models.Statement
		err := rows.Scan(&s.ID, &s.StatementNumber, &s.BuildingID, &s.UnitID,
			&s.PeriodStart, &s.PeriodEnd, &s.TotalAllocatedCents, &s.PrepaymentsCents,
			&s.BalanceCents, &s.Currency, &s.Status, &s.PDFPath, &s.GeneratedAt)
		if err != nil {
			log.Printf("[BILLING] Error scanning statement: %v", err)
			continue
		}
		statements = append(statements, s)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statements)
}

func (h *BillingHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var s models.Statement
	err = h.db.QueryRow(`
		SELECT id, statement_number, building_id, unit_id, period_start, period_end,
		       total_allocated_cents, prepayments_cents, balance_cents,
		       COALESCE(currency, 'EUR'), COALESCE(status, 'draft'),
		       COALESCE(pdf_path, ''), generated_at
		FROM statements WHERE id = ?
	`, id).Scan(&s.ID, &s.StatementNumber, &s.BuildingID, &s.UnitID,
		&s.PeriodStart, &s.PeriodEnd, &s.TotalAllocatedCents, &s.PrepaymentsCents,
		&s.BalanceCents, &s.Currency, &s.Status, &s.PDFPath, &s.GeneratedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "Statement not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[BILLING] Failed to load statement: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	lineRows, err := h.db.Query(`
		SELECT id, statement_id, cost_item_id, description, distribution_key, share_percent, amount_cents
		FROM statement_lines WHERE statement_id = ? ORDER BY id
	`, id)
	if err == nil {
		defer lineRows.Close()
		for lineRows.Next() {
			var line models.StatementLine
			if err := lineRows.Scan(&line.ID, &line.StatementID, &line.CostItemID,
				&line.Description, &line.DistributionKey, &line.SharePercent, &line.AmountCents); err == nil {
				s.Lines = append(s.Lines, line)
			}
		}
	}

	if unit, err := h.loadUnit(s.UnitID); err == nil {
		s.Unit = &unit
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *BillingHandler) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var number, pdfPath string
	h.db.QueryRow("SELECT statement_number, COALESCE(pdf_path, '') FROM statements WHERE id = ?", id).
		Scan(&number, &pdfPath)

	_, err = h.db.Exec("DELETE FROM statements WHERE id = ?", id)
	if err != nil {
		log.Printf("[BILLING] Failed to delete statement: %v", err)
		http.Error(w, "Failed to delete statement", http.StatusInternalServerError)
		return
	}

	if pdfPath != "" {
		fullPath := filepath.Join(h.statementsDir, filepath.Base(pdfPath))
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[BILLING] Failed to remove PDF %s: %v", fullPath, err)
		}
	}

	h.logToDatabase("Statement Deleted", fmt.Sprintf("Statement %s (ID %d)", number, id), r.RemoteAddr)

	w.WriteHeader(http.StatusNoContent)
}

func (h *BillingHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var number, pdfPath string
	err = h.db.QueryRow("SELECT statement_number, COALESCE(pdf_path, '') FROM statements WHERE id = ?", id).
		Scan(&number, &pdfPath)

	if err == sql.ErrNoRows {
		http.Error(w, "Statement not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if pdfPath == "" {
		http.Error(w, "No PDF for this statement", http.StatusNotFound)
		return
	}

	// Base strips any path components so the lookup stays inside the
	// statements directory.
	fullPath := filepath.Join(h.statementsDir, filepath.Base(pdfPath))
	if _, err := os.Stat(fullPath); err != nil {
		http.Error(w, "PDF file not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", number+".pdf"))
	http.ServeFile(w, r, fullPath)
}
