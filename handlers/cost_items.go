package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/skaiser/nebenkosten-billing/backend/billing"
	"github.com/skaiser/nebenkosten-billing/backend/models"
)

type CostItemHandler struct {
	db *sql.DB
}

func NewCostItemHandler(db *sql.DB) *CostItemHandler {
	return &CostItemHandler{db: db}
}

func validateCostItem(item models.CostItem) string {
	if item.BuildingID == 0 {
		return "building_id is required"
	}
	if item.Name == "" {
		return "name is required"
	}
	if item.AnnualAmountCents < 0 {
		return "annual_amount_cents must not be negative"
	}
	if _, err := billing.ParseDistributionKey(item.DistributionKey); err != nil {
		return "Invalid distribution_key. Must be: area, persons, units, or consumption"
	}
	if item.DistributionKey == string(billing.KeyConsumption) {
		switch item.ConsumptionGroup {
		case "heating", "water", "electricity":
		default:
			return "consumption_group is required for consumption items. Must be: heating, water, or electricity"
		}
	}
	return ""
}

func (h *CostItemHandler) List(w http.ResponseWriter, r *http.Request) {
	buildingID := r.URL.Query().Get("building_id")
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	query := `
		SELECT id, building_id, name, annual_amount_cents, distribution_key,
		       COALESCE(consumption_group, ''), is_active, created_at, updated_at
		FROM cost_items
		WHERE 1=1
	`
	args := []interface{}{}

	if buildingID != "" {
		query += " AND building_id = ?"
		args = append(args, buildingID)
	}

	if !includeInactive {
		query += " AND is_active = 1"
	}

	query += " ORDER BY building_id, name"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		log.Printf("ERROR: Failed to query cost items: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	items := []models.CostItem{}
	for rows.Next() {
		var item models.CostItem
		err := rows.Scan(&item.ID, &item.BuildingID, &item.Name, &item.AnnualAmountCents,
			&item.DistributionKey, &item.ConsumptionGroup, &item.IsActive,
			&item.CreatedAt, &item.UpdatedAt)
		if err == nil {
			items = append(items, item)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (h *CostItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var item models.CostItem
	err = h.db.QueryRow(`
		SELECT id, building_id, name, annual_amount_cents, distribution_key,
		       COALESCE(consumption_group, ''), is_active, created_at, updated_at
		FROM cost_items
		WHERE id = ?
	`, id).Scan(&item.ID, &item.BuildingID, &item.Name, &item.AnnualAmountCents,
		&item.DistributionKey, &item.ConsumptionGroup, &item.IsActive,
		&item.CreatedAt, &item.UpdatedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "Cost item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("ERROR: Failed to query cost item: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

func (h *CostItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var item models.CostItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateCostItem(item); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if item.DistributionKey != string(billing.KeyConsumption) {
		item.ConsumptionGroup = ""
	}

	result, err := h.db.Exec(`
		INSERT INTO cost_items (building_id, name, annual_amount_cents,
			distribution_key, consumption_group, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.BuildingID, item.Name, item.AnnualAmountCents,
		item.DistributionKey, item.ConsumptionGroup, item.IsActive)

	if err != nil {
		log.Printf("ERROR: Failed to create cost item: %v", err)
		http.Error(w, "Failed to create cost item", http.StatusInternalServerError)
		return
	}

	id, _ := result.LastInsertId()
	item.ID = int(id)

	log.Printf("SUCCESS: Created cost item %d '%s' for building %d", item.ID, item.Name, item.BuildingID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

func (h *CostItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var item models.CostItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateCostItem(item); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if item.DistributionKey != string(billing.KeyConsumption) {
		item.ConsumptionGroup = ""
	}

	_, err = h.db.Exec(`
		UPDATE cost_items SET
			building_id = ?, name = ?, annual_amount_cents = ?,
			distribution_key = ?, consumption_group = ?, is_active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, item.BuildingID, item.Name, item.AnnualAmountCents,
		item.DistributionKey, item.ConsumptionGroup, item.IsActive, id)

	if err != nil {
		log.Printf("ERROR: Failed to update cost item: %v", err)
		http.Error(w, "Failed to update cost item", http.StatusInternalServerError)
		return
	}

	item.ID = id
	log.Printf("SUCCESS: Updated cost item %d", id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

func (h *CostItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	_, err = h.db.Exec("DELETE FROM cost_items WHERE id = ?", id)
	if err != nil {
		log.Printf("ERROR: Failed to delete cost item: %v", err)
		http.Error(w, "Failed to delete cost item", http.StatusInternalServerError)
		return
	}

	log.Printf("SUCCESS: Deleted cost item %d", id)
	w.WriteHeader(http.StatusNoContent)
}
