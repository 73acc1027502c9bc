package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/skaiser/nebenkosten-billing/backend/models"
)

type DashboardHandler struct {
	db *sql.DB
}

func NewDashboardHandler(db *sql.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats models.DashboardStats

	h.db.QueryRow("SELECT COUNT(*) FROM buildings").Scan(&stats.TotalBuildings)
	h.db.QueryRow("SELECT COUNT(*) FROM units").Scan(&stats.TotalUnits)
	h.db.QueryRow("SELECT COUNT(*) FROM units WHERE is_vacant = 1").Scan(&stats.VacantUnits)
	h.db.QueryRow("SELECT COUNT(*) FROM meters").Scan(&stats.TotalMeters)
	h.db.QueryRow("SELECT COUNT(*) FROM meters WHERE is_active = 1").Scan(&stats.ActiveMeters)
	h.db.QueryRow("SELECT COUNT(*) FROM statements").Scan(&stats.TotalStatements)

	today := time.Now().Format("2006-01-02")
	h.db.QueryRow(`
		SELECT COUNT(*) FROM meter_readings
		WHERE DATE(reading_date) = ?
	`, today).Scan(&stats.ReadingsToday)

	// Sum of amounts tenants still owe across issued statements
	h.db.QueryRow(`
		SELECT COALESCE(SUM(-balance_cents), 0)
		FROM statements
		WHERE status = 'issued' AND balance_cents < 0
	`).Scan(&stats.OpenBalanceSum)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

type meterConsumptionPoint struct {
	ReadingDate time.Time `json:"reading_date"`
	Value       float64   `json:"value"`
}

type meterConsumptionSeries struct {
	MeterID    int                     `json:"meter_id"`
	MeterName  string                  `json:"meter_name"`
	MeterType  string                  `json:"meter_type"`
	UnitNumber string                  `json:"unit_number,omitempty"`
	Data       []meterConsumptionPoint `json:"data"`
}

type buildingConsumption struct {
	BuildingID   int                      `json:"building_id"`
	BuildingName string                   `json:"building_name"`
	Meters       []meterConsumptionSeries `json:"meters"`
}

// GetConsumptionByBuilding returns the raw register curves per meter,
// grouped by building, for the dashboard charts.
func (h *DashboardHandler) GetConsumptionByBuilding(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "30d"
	}

	var startTime time.Time
	switch period {
	case "7d":
		startTime = time.Now().Add(-7 * 24 * time.Hour)
	case "30d":
		startTime = time.Now().Add(-30 * 24 * time.Hour)
	case "90d":
		startTime = time.Now().Add(-90 * 24 * time.Hour)
	case "365d":
		startTime = time.Now().Add(-365 * 24 * time.Hour)
	default:
		startTime = time.Now().Add(-30 * 24 * time.Hour)
	}

	buildingRows, err := h.db.Query("SELECT id, name FROM buildings ORDER BY name")
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer buildingRows.Close()

	buildings := []buildingConsumption{}

	for buildingRows.Next() {
		var buildingID int
		var buildingName string
		if err := buildingRows.Scan(&buildingID, &buildingName); err != nil {
			continue
		}

		building := buildingConsumption{
			BuildingID:   buildingID,
			BuildingName: buildingName,
			Meters:       []meterConsumptionSeries{},
		}

		meterRows, err := h.db.Query(`
			SELECT m.id, m.name, m.meter_type, m.unit_id
			FROM meters m
			WHERE m.building_id = ? AND m.is_active = 1
			ORDER BY m.meter_type, m.name
		`, buildingID)
		if err != nil {
			continue
		}

		for meterRows.Next() {
			var meterID int
			var meterName, meterType string
			var unitID sql.NullInt64

			if err := meterRows.Scan(&meterID, &meterName, &meterType, &unitID); err != nil {
				continue
			}

			unitNumber := ""
			if unitID.Valid {
				h.db.QueryRow("SELECT unit_number FROM units WHERE id = ?", unitID.Int64).Scan(&unitNumber)
			}

			dataRows, err := h.db.Query(`
				SELECT reading_date, value
				FROM meter_readings
				WHERE meter_id = ? AND reading_date >= ?
				ORDER BY reading_date ASC
			`, meterID, startTime)
			if err != nil {
				continue
			}

			series := meterConsumptionSeries{
				MeterID:    meterID,
				MeterName:  meterName,
				MeterType:  meterType,
				UnitNumber: unitNumber,
				Data:       []meterConsumptionPoint{},
			}

			for dataRows.Next() {
				var point meterConsumptionPoint
				if err := dataRows.Scan(&point.ReadingDate, &point.Value); err == nil {
					series.Data = append(series.Data, point)
				}
			}
			dataRows.Close()

			building.Meters = append(building.Meters, series)
		}
		meterRows.Close()

		if len(building.Meters) > 0 {
			buildings = append(buildings, building)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(buildings)
}

func (h *DashboardHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := r.URL.Query().Get("limit")
	if limit == "" {
		limit = "100"
	}

	rows, err := h.db.Query(`
		SELECT id, action, COALESCE(details, ''), user_id, COALESCE(ip_address, ''), created_at
		FROM admin_logs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)

	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	logs := []models.AdminLog{}
	for rows.Next() {
		var l models.AdminLog
		if err := rows.Scan(&l.ID, &l.Action, &l.Details, &l.UserID, &l.IPAddress, &l.CreatedAt); err == nil {
			logs = append(logs, l)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}
