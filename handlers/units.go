package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/skaiser/nebenkosten-billing/backend/models"
)

type UnitHandler struct {
	db *sql.DB
}

func NewUnitHandler(db *sql.DB) *UnitHandler {
	return &UnitHandler{db: db}
}

const unitColumns = `
	id, building_id, unit_number, COALESCE(floor, ''), area_sqm, persons_count,
	COALESCE(occupant_name, ''), COALESCE(occupant_email, ''), COALESCE(occupant_phone, ''),
	monthly_prepayment_cents, is_vacant, COALESCE(notes, ''), created_at, updated_at`

func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request) {
	query := "SELECT" + unitColumns + " FROM units"
	args := []interface{}{}

	if buildingID := r.URL.Query().Get("building_id"); buildingID != "" {
		query += " WHERE building_id = ?"
		args = append(args, buildingID)
	}
	query += " ORDER BY building_id, unit_number"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		log.Printf("Error listing units: %v", err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]interface{}{})
		return
	}
	defer rows.Close()

	units := []models.Unit{}
	for rows.Next() {
		var u models.Unit
		err := rows.Scan(&u.ID, &u.BuildingID, &u.UnitNumber, &u.Floor, &u.AreaSqm,
			&u.PersonsCount, &u.OccupantName, &u.OccupantEmail, &u.OccupantPhone,
			&u.MonthlyPrepaymentCents, &u.IsVacant, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			log.Printf("Error scanning unit: %v", err)
			continue
		}
		units = append(units, u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(units)
}

func (h *UnitHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var u models.Unit
	err = h.db.QueryRow("SELECT"+unitColumns+" FROM units WHERE id = ?", id).
		Scan(&u.ID, &u.BuildingID, &u.UnitNumber, &u.Floor, &u.AreaSqm,
			&u.PersonsCount, &u.OccupantName, &u.OccupantEmail, &u.OccupantPhone,
			&u.MonthlyPrepaymentCents, &u.IsVacant, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		http.Error(w, "Unit not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting unit: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(u)
}

func validateUnit(u models.Unit) string {
	if u.BuildingID == 0 {
		return "building_id is required"
	}
	if u.UnitNumber == "" {
		return "unit_number is required"
	}
	if u.AreaSqm < 0 {
		return "area_sqm must not be negative"
	}
	if u.PersonsCount < 0 {
		return "persons_count must not be negative"
	}
	if u.MonthlyPrepaymentCents < 0 {
		return "monthly_prepayment_cents must not be negative"
	}
	return ""
}

func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var u models.Unit
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateUnit(u); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		INSERT INTO units (building_id, unit_number, floor, area_sqm, persons_count,
			occupant_name, occupant_email, occupant_phone, monthly_prepayment_cents,
			is_vacant, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.BuildingID, u.UnitNumber, u.Floor, u.AreaSqm, u.PersonsCount,
		u.OccupantName, u.OccupantEmail, u.OccupantPhone, u.MonthlyPrepaymentCents,
		u.IsVacant, u.Notes)

	if err != nil {
		log.Printf("Error creating unit: %v", err)
		http.Error(w, "Failed to create unit", http.StatusInternalServerError)
		return
	}

	id, _ := result.LastInsertId()
	u.ID = int(id)

	log.Printf("Created unit %d: %s (building %d)", u.ID, u.UnitNumber, u.BuildingID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(u)
}

func (h *UnitHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var u models.Unit
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateUnit(u); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	_, err = h.db.Exec(`
		UPDATE units SET
			building_id = ?, unit_number = ?, floor = ?, area_sqm = ?, persons_count = ?,
			occupant_name = ?, occupant_email = ?, occupant_phone = ?,
			monthly_prepayment_cents = ?, is_vacant = ?, notes = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, u.BuildingID, u.UnitNumber, u.Floor, u.AreaSqm, u.PersonsCount,
		u.OccupantName, u.OccupantEmail, u.OccupantPhone, u.MonthlyPrepaymentCents,
		u.IsVacant, u.Notes, id)

	if err != nil {
		log.Printf("Error updating unit: %v", err)
		http.Error(w, "Failed to update unit", http.StatusInternalServerError)
		return
	}

	u.ID = id

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(u)
}

func (h *UnitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	_, err = h.db.Exec("DELETE FROM units WHERE id = ?", id)
	if err != nil {
		log.Printf("Error deleting unit: %v", err)
		http.Error(w, "Failed to delete unit", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
