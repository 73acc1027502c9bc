package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/skaiser/nebenkosten-billing/backend/crypto"
	"github.com/skaiser/nebenkosten-billing/backend/models"
	"github.com/skaiser/nebenkosten-billing/backend/services"
)

type MeterHandler struct {
	db              *sql.DB
	mqttCollector   *services.MQTTCollector
	modbusCollector *services.ModbusCollector
}

func NewMeterHandler(db *sql.DB, mqttCollector *services.MQTTCollector, modbusCollector *services.ModbusCollector) *MeterHandler {
	return &MeterHandler{
		db:              db,
		mqttCollector:   mqttCollector,
		modbusCollector: modbusCollector,
	}
}

// safeRestartCollectors restarts networked collectors after a meter
// configuration change so new subscriptions and connections take effect.
func (h *MeterHandler) safeRestartCollectors(reason string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("ERROR: Collector restart panicked: %v", r)
			}
		}()
		log.Printf("Restarting collectors: %s", reason)
		if h.mqttCollector != nil {
			h.mqttCollector.RestartConnections()
		}
		if h.modbusCollector != nil {
			h.modbusCollector.RestartConnections()
		}
	}()
}

// encryptConfig encrypts a connection_config JSON blob before storage.
// Empty configs are stored as-is.
func encryptConfig(configJSON string) (string, error) {
	if strings.TrimSpace(configJSON) == "" {
		return "", nil
	}
	key, err := crypto.GetEncryptionKey()
	if err != nil {
		return "", err
	}
	return crypto.Encrypt(configJSON, key)
}

const meterColumns = `
	id, name, meter_type, building_id, unit_id, COALESCE(serial_number, ''),
	connection_type, COALESCE(notes, ''), last_reading, last_reading_time,
	is_active, created_at, updated_at`

func (h *MeterHandler) List(w http.ResponseWriter, r *http.Request) {
	query := "SELECT" + meterColumns + " FROM meters"
	args := []interface{}{}

	conditions := []string{}
	if buildingID := r.URL.Query().Get("building_id"); buildingID != "" {
		conditions = append(conditions, "building_id = ?")
		args = append(args, buildingID)
	}
	if unitID := r.URL.Query().Get("unit_id"); unitID != "" {
		conditions = append(conditions, "unit_id = ?")
		args = append(args, unitID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY building_id, name"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		log.Printf("Error listing meters: %v", err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]interface{}{})
		return
	}
	defer rows.Close()

	meters := []models.Meter{}
	for rows.Next() {
		var m models.Meter
		err := rows.Scan(&m.ID, &m.Name, &m.MeterType, &m.BuildingID, &m.UnitID,
			&m.SerialNumber, &m.ConnectionType, &m.Notes, &m.LastReading,
			&m.LastReadingTime, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			log.Printf("Error scanning meter: %v", err)
			continue
		}
		meters = append(meters, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meters)
}

func (h *MeterHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var m models.Meter
	err = h.db.QueryRow("SELECT"+meterColumns+" FROM meters WHERE id = ?", id).
		Scan(&m.ID, &m.Name, &m.MeterType, &m.BuildingID, &m.UnitID,
			&m.SerialNumber, &m.ConnectionType, &m.Notes, &m.LastReading,
			&m.LastReadingTime, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "Meter not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting meter: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

func validMeterType(t string) bool {
	switch t {
	case "electricity", "gas", "water", "heating":
		return true
	}
	return false
}

func validConnectionType(t string) bool {
	switch t {
	case "manual", "mqtt", "modbus_tcp":
		return true
	}
	return false
}

func (h *MeterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var m models.Meter
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if m.Name == "" || m.BuildingID == 0 {
		http.Error(w, "name and building_id are required", http.StatusBadRequest)
		return
	}
	if !validMeterType(m.MeterType) {
		http.Error(w, "Invalid meter_type", http.StatusBadRequest)
		return
	}
	if m.ConnectionType == "" {
		m.ConnectionType = "manual"
	}
	if !validConnectionType(m.ConnectionType) {
		http.Error(w, "Invalid connection_type", http.StatusBadRequest)
		return
	}

	storedConfig, err := encryptConfig(m.ConnectionConfig)
	if err != nil {
		log.Printf("Error encrypting meter config: %v", err)
		http.Error(w, "Failed to store connection config", http.StatusInternalServerError)
		return
	}

	result, err := h.db.Exec(`
		INSERT INTO meters (name, meter_type, building_id, unit_id, serial_number,
			connection_type, connection_config, notes, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Name, m.MeterType, m.BuildingID, m.UnitID, m.SerialNumber,
		m.ConnectionType, storedConfig, m.Notes, m.IsActive)

	if err != nil {
		log.Printf("Error creating meter: %v", err)
		http.Error(w, "Failed to create meter", http.StatusInternalServerError)
		return
	}

	id, _ := result.LastInsertId()
	m.ID = int(id)
	m.ConnectionConfig = ""

	log.Printf("Created meter %d: %s (%s, %s)", m.ID, m.Name, m.MeterType, m.ConnectionType)

	if m.ConnectionType != "manual" && m.IsActive {
		h.safeRestartCollectors("meter created")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

func (h *MeterHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var m models.Meter
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !validMeterType(m.MeterType) {
		http.Error(w, "Invalid meter_type", http.StatusBadRequest)
		return
	}
	if !validConnectionType(m.ConnectionType) {
		http.Error(w, "Invalid connection_type", http.StatusBadRequest)
		return
	}

	if m.ConnectionConfig != "" {
		storedConfig, err := encryptConfig(m.ConnectionConfig)
		if err != nil {
			log.Printf("Error encrypting meter config: %v", err)
			http.Error(w, "Failed to store connection config", http.StatusInternalServerError)
			return
		}

		_, err = h.db.Exec(`
			UPDATE meters SET
				name = ?, meter_type = ?, building_id = ?, unit_id = ?, serial_number = ?,
				connection_type = ?, connection_config = ?, notes = ?, is_active = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, m.Name, m.MeterType, m.BuildingID, m.UnitID, m.SerialNumber,
			m.ConnectionType, storedConfig, m.Notes, m.IsActive, id)
		if err != nil {
			log.Printf("Error updating meter: %v", err)
			http.Error(w, "Failed to update meter", http.StatusInternalServerError)
			return
		}
	} else {
		// Keep the stored config when the client did not send a new one
		_, err = h.db.Exec(`
			UPDATE meters SET
				name = ?, meter_type = ?, building_id = ?, unit_id = ?, serial_number = ?,
				connection_type = ?, notes = ?, is_active = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, m.Name, m.MeterType, m.BuildingID, m.UnitID, m.SerialNumber,
			m.ConnectionType, m.Notes, m.IsActive, id)
		if err != nil {
			log.Printf("Error updating meter: %v", err)
			http.Error(w, "Failed to update meter", http.StatusInternalServerError)
			return
		}
	}

	m.ID = id
	m.ConnectionConfig = ""

	if m.ConnectionType != "manual" {
		h.safeRestartCollectors("meter updated")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

func (h *MeterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var connectionType string
	h.db.QueryRow("SELECT connection_type FROM meters WHERE id = ?", id).Scan(&connectionType)

	_, err = h.db.Exec("DELETE FROM meters WHERE id = ?", id)
	if err != nil {
		log.Printf("Error deleting meter: %v", err)
		http.Error(w, "Failed to delete meter", http.StatusInternalServerError)
		return
	}

	if connectionType != "" && connectionType != "manual" {
		h.safeRestartCollectors("meter deleted")
	}

	w.WriteHeader(http.StatusNoContent)
}

type createReadingRequest struct {
	ReadingDate string  `json:"reading_date"`
	Value       float64 `json:"value"`
}

// CreateReading records a manually entered register value.
func (h *MeterHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	meterID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req createReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	readingDate, err := time.Parse("2006-01-02", req.ReadingDate)
	if err != nil {
		http.Error(w, "reading_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.Value < 0 {
		http.Error(w, "value must not be negative", http.StatusBadRequest)
		return
	}

	var exists int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM meters WHERE id = ?", meterID).Scan(&exists); err != nil || exists == 0 {
		http.Error(w, "Meter not found", http.StatusNotFound)
		return
	}

	result, err := h.db.Exec(`
		INSERT INTO meter_readings (meter_id, reading_date, value, source)
		VALUES (?, ?, ?, 'manual')
	`, meterID, readingDate, req.Value)

	if err != nil {
		log.Printf("Error saving manual reading: %v", err)
		http.Error(w, "Failed to save reading", http.StatusInternalServerError)
		return
	}

	h.db.Exec(`
		UPDATE meters SET last_reading = ?, last_reading_time = ?
		WHERE id = ? AND (last_reading_time IS NULL OR last_reading_time < ?)
	`, req.Value, readingDate, meterID, readingDate)

	id, _ := result.LastInsertId()
	reading := models.MeterReading{
		ID:          int(id),
		MeterID:     meterID,
		ReadingDate: readingDate,
		Value:       req.Value,
		Source:      "manual",
	}

	log.Printf("Manual reading saved for meter %d: %.3f at %s", meterID, req.Value, req.ReadingDate)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reading)
}

func (h *MeterHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	meterID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	query := `
		SELECT id, meter_id, reading_date, value, COALESCE(source, 'manual'), created_at
		FROM meter_readings WHERE meter_id = ?`
	args := []interface{}{meterID}

	if from := r.URL.Query().Get("from"); from != "" {
		query += " AND reading_date >= ?"
		args = append(args, from)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		query += " AND reading_date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY reading_date DESC LIMIT 500"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		log.Printf("Error listing readings: %v", err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]interface{}{})
		return
	}
	defer rows.Close()

	readings := []models.MeterReading{}
	for rows.Next() {
		var reading models.MeterReading
		err := rows.Scan(&reading.ID, &reading.MeterID, &reading.ReadingDate,
			&reading.Value, &reading.Source, &reading.CreatedAt)
		if err != nil {
			continue
		}
		readings = append(readings, reading)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(readings)
}

func (h *MeterHandler) DeleteReading(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	readingID, err := strconv.Atoi(vars["readingId"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	_, err = h.db.Exec("DELETE FROM meter_readings WHERE id = ?", readingID)
	if err != nil {
		log.Printf("Error deleting reading: %v", err)
		http.Error(w, "Failed to delete reading", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCollectorStatus exposes live collector state for the meters screen.
func (h *MeterHandler) GetCollectorStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{}
	if h.mqttCollector != nil {
		for k, v := range h.mqttCollector.GetConnectionStatus() {
			status[k] = v
		}
	}
	if h.modbusCollector != nil {
		status["modbus_connections"] = h.modbusCollector.GetConnectionStatus()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
