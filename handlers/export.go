package handlers

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
)

type ExportHandler struct {
	db *sql.DB
}

func NewExportHandler(db *sql.DB) *ExportHandler {
	return &ExportHandler{db: db}
}

func (h *ExportHandler) ExportData(w http.ResponseWriter, r *http.Request) {
	exportType := r.URL.Query().Get("type")
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	meterIDStr := r.URL.Query().Get("meter_id")
	buildingIDStr := r.URL.Query().Get("building_id")

	if exportType == "" || startDate == "" || endDate == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}

	var data [][]string
	var err error

	switch exportType {
	case "readings":
		data, err = h.exportReadings(startDate, endDate, meterIDStr)
	case "statements":
		data, err = h.exportStatements(startDate, endDate, buildingIDStr)
	default:
		http.Error(w, "Invalid export type", http.StatusBadRequest)
		return
	}

	if err != nil {
		log.Printf("Export error: %v", err)
		http.Error(w, "Failed to export data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("%s-export-%s-to-%s.csv", exportType, startDate, endDate)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	for _, row := range data {
		if err := writer.Write(row); err != nil {
			log.Printf("Error writing CSV: %v", err)
			return
		}
	}
}

func (h *ExportHandler) exportReadings(startDate, endDate, meterIDStr string) ([][]string, error) {
	baseQuery := `
		SELECT
			m.id,
			m.name,
			m.meter_type,
			b.name as building_name,
			COALESCE(u.unit_number, '') as unit_number,
			mr.reading_date,
			mr.value,
			COALESCE(mr.source, 'manual')
		FROM meter_readings mr
		JOIN meters m ON mr.meter_id = m.id
		JOIN buildings b ON m.building_id = b.id
		LEFT JOIN units u ON m.unit_id = u.id
		WHERE DATE(mr.reading_date) BETWEEN ? AND ?
	`

	var rows *sql.Rows
	var err error

	if meterIDStr != "" {
		meterID, convErr := strconv.Atoi(meterIDStr)
		if convErr != nil {
			return nil, fmt.Errorf("invalid meter_id: %v", convErr)
		}
		baseQuery += " AND m.id = ? ORDER BY mr.reading_date"
		rows, err = h.db.Query(baseQuery, startDate, endDate, meterID)
	} else {
		baseQuery += " ORDER BY m.id, mr.reading_date"
		rows, err = h.db.Query(baseQuery, startDate, endDate)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := [][]string{
		{"Meter ID", "Meter Name", "Meter Type", "Building", "Unit", "Reading Date", "Value", "Source"},
	}

	for rows.Next() {
		var meterID int
		var meterName, meterType, buildingName, unitNumber, readingDate, source string
		var value float64

		err := rows.Scan(&meterID, &meterName, &meterType, &buildingName, &unitNumber, &readingDate, &value, &source)
		if err != nil {
			log.Printf("Error scanning reading row: %v", err)
			continue
		}

		data = append(data, []string{
			fmt.Sprintf("%d", meterID),
			meterName,
			meterType,
			buildingName,
			unitNumber,
			readingDate,
			fmt.Sprintf("%.3f", value),
			source,
		})
	}

	return data, nil
}

func (h *ExportHandler) exportStatements(startDate, endDate, buildingIDStr string) ([][]string, error) {
	baseQuery := `
		SELECT
			s.statement_number,
			b.name as building_name,
			u.unit_number,
			COALESCE(u.occupant_name, '') as occupant_name,
			s.period_start,
			s.period_end,
			s.total_allocated_cents,
			s.prepayments_cents,
			s.balance_cents,
			COALESCE(s.currency, 'EUR'),
			COALESCE(s.status, 'draft')
		FROM statements s
		JOIN buildings b ON s.building_id = b.id
		JOIN units u ON s.unit_id = u.id
		WHERE s.period_start >= ? AND s.period_end <= ?
	`

	var rows *sql.Rows
	var err error

	if buildingIDStr != "" {
		buildingID, convErr := strconv.Atoi(buildingIDStr)
		if convErr != nil {
			return nil, fmt.Errorf("invalid building_id: %v", convErr)
		}
		baseQuery += " AND s.building_id = ? ORDER BY u.unit_number"
		rows, err = h.db.Query(baseQuery, startDate, endDate, buildingID)
	} else {
		baseQuery += " ORDER BY s.building_id, u.unit_number"
		rows, err = h.db.Query(baseQuery, startDate, endDate)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := [][]string{
		{"Statement", "Building", "Unit", "Occupant", "Period Start", "Period End",
			"Allocated (cents)", "Prepayments (cents)", "Balance (cents)", "Currency", "Status"},
	}

	for rows.Next() {
		var number, buildingName, unitNumber, occupantName, periodStart, periodEnd, currency, status string
		var allocated, prepayments, balance int64

		err := rows.Scan(&number, &buildingName, &unitNumber, &occupantName, &periodStart, &periodEnd,
			&allocated, &prepayments, &balance, &currency, &status)
		if err != nil {
			log.Printf("Error scanning statement row: %v", err)
			continue
		}

		data = append(data, []string{
			number,
			buildingName,
			unitNumber,
			occupantName,
			periodStart,
			periodEnd,
			fmt.Sprintf("%d", allocated),
			fmt.Sprintf("%d", prepayments),
			fmt.Sprintf("%d", balance),
			currency,
			status,
		})
	}

	return data, nil
}
