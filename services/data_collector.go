package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// DataCollector runs the periodic collection cycle. Networked meters buffer
// their latest cumulative value in the MQTT and Modbus collectors; every
// cycle the current value of each active networked meter is snapshotted
// into meter_readings. Manual meters are untouched, their readings come in
// through the API.
type DataCollector struct {
	db              *sql.DB
	mqttCollector   *MQTTCollector
	modbusCollector *ModbusCollector
	lastCollection  time.Time
}

const collectionInterval = 15 * time.Minute

func NewDataCollector(db *sql.DB, mqttCollector *MQTTCollector, modbusCollector *ModbusCollector) *DataCollector {
	return &DataCollector{
		db:              db,
		mqttCollector:   mqttCollector,
		modbusCollector: modbusCollector,
	}
}

func (dc *DataCollector) Start() {
	log.Println("===================================")
	log.Println("Meter Data Collector Starting")
	log.Printf("Collection Interval: %s", collectionInterval)
	log.Println("===================================")

	dc.mqttCollector.Start()
	dc.modbusCollector.Start()

	dc.logSystemStatus()
	dc.collectAllData()

	ticker := time.NewTicker(collectionInterval)
	defer ticker.Stop()

	for range ticker.C {
		dc.collectAllData()
	}
}

func (dc *DataCollector) logSystemStatus() {
	var activeMeters, totalMeters, networkedMeters int
	dc.db.QueryRow("SELECT COUNT(*) FROM meters WHERE is_active = 1").Scan(&activeMeters)
	dc.db.QueryRow("SELECT COUNT(*) FROM meters").Scan(&totalMeters)
	dc.db.QueryRow("SELECT COUNT(*) FROM meters WHERE is_active = 1 AND connection_type != 'manual'").Scan(&networkedMeters)

	log.Printf("System Status: %d/%d meters active, %d networked", activeMeters, totalMeters, networkedMeters)
}

func (dc *DataCollector) GetDebugInfo() map[string]interface{} {
	var activeMeters, totalMeters, recentErrors int
	dc.db.QueryRow("SELECT COUNT(*) FROM meters WHERE is_active = 1").Scan(&activeMeters)
	dc.db.QueryRow("SELECT COUNT(*) FROM meters").Scan(&totalMeters)
	dc.db.QueryRow(`SELECT COUNT(*) FROM admin_logs WHERE (action LIKE '%error%'
		OR action LIKE '%failed%') AND created_at > datetime('now', '-24 hours')`).Scan(&recentErrors)

	nextCollection := int(collectionInterval.Minutes()) - int(time.Since(dc.lastCollection).Minutes())
	if nextCollection < 0 {
		nextCollection = 0
	}

	info := map[string]interface{}{
		"active_meters":           activeMeters,
		"total_meters":            totalMeters,
		"last_collection":         dc.lastCollection,
		"next_collection_minutes": nextCollection,
		"recent_errors":           recentErrors,
	}

	for k, v := range dc.mqttCollector.GetConnectionStatus() {
		info[k] = v
	}
	info["modbus_connections"] = dc.modbusCollector.GetConnectionStatus()

	return info
}

func (dc *DataCollector) collectAllData() {
	dc.lastCollection = time.Now()
	log.Println("========================================")
	log.Printf("Starting data collection cycle at %s", dc.lastCollection.Format("2006-01-02 15:04:05"))
	log.Println("========================================")

	rows, err := dc.db.Query(`
		SELECT id, name, meter_type, connection_type
		FROM meters
		WHERE is_active = 1 AND connection_type != 'manual'
	`)
	if err != nil {
		log.Printf("ERROR: Failed to query meters: %v", err)
		dc.logToDatabase("Meter Query Error", fmt.Sprintf("Failed to query meters: %v", err))
		return
	}
	defer rows.Close()

	meterCount := 0
	successCount := 0

	for rows.Next() {
		var id int
		var name, meterType, connectionType string

		if err := rows.Scan(&id, &name, &meterType, &connectionType); err != nil {
			continue
		}

		meterCount++

		var value float64
		var ok bool

		switch connectionType {
		case "mqtt":
			value, ok = dc.mqttCollector.GetMeterReading(id)
		case "modbus_tcp":
			v, err := dc.modbusCollector.ReadMeter(id)
			if err != nil {
				log.Printf("ERROR: Modbus read failed for meter '%s': %v", name, err)
				dc.logToDatabase("Modbus Read Error", fmt.Sprintf("Meter: %s, Error: %v", name, err))
				continue
			}
			value, ok = v, true
		default:
			log.Printf("ERROR: Unknown connection type for meter '%s': %s", name, connectionType)
			continue
		}

		if !ok {
			log.Printf("No current value for meter '%s' (%s), skipping", name, meterType)
			continue
		}

		if dc.saveReading(id, name, value, connectionType) {
			successCount++
		}
	}

	log.Printf("Collection cycle complete: %d/%d meters saved", successCount, meterCount)
	dc.logToDatabase("Data Collection Completed", fmt.Sprintf("%d/%d networked meters saved", successCount, meterCount))
}

// saveReading stores a cumulative register snapshot. Values below the
// previous register are rejected, a real meter register never decreases.
func (dc *DataCollector) saveReading(meterID int, name string, value float64, source string) bool {
	var prevValue float64
	err := dc.db.QueryRow(`
		SELECT value FROM meter_readings
		WHERE meter_id = ?
		ORDER BY reading_date DESC LIMIT 1
	`, meterID).Scan(&prevValue)

	if err == nil && value < prevValue {
		log.Printf("WARNING: Meter '%s' reported %.3f below previous register %.3f, rejecting", name, value, prevValue)
		dc.logToDatabase("Reading Rejected", fmt.Sprintf("Meter: %s, Value: %.3f, Previous: %.3f", name, value, prevValue))
		return false
	}

	now := time.Now()
	_, err = dc.db.Exec(`
		INSERT INTO meter_readings (meter_id, reading_date, value, source)
		VALUES (?, ?, ?, ?)
	`, meterID, now, value, source)

	if err != nil {
		log.Printf("ERROR: Failed to save reading for meter '%s': %v", name, err)
		dc.logToDatabase("Save Error", fmt.Sprintf("Meter: %s, Error: %v", name, err))
		return false
	}

	dc.db.Exec(`
		UPDATE meters
		SET last_reading = ?, last_reading_time = ?
		WHERE id = ?
	`, value, now, meterID)

	log.Printf("SUCCESS: Saved reading for meter '%s': %.3f (%s)", name, value, source)
	return true
}

func (dc *DataCollector) logToDatabase(action, details string) {
	dc.db.Exec(`
		INSERT INTO admin_logs (action, details, ip_address)
		VALUES (?, ?, 'system')
	`, action, details)
}
