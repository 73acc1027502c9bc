package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS admin_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS buildings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			address_street TEXT,
			address_city TEXT,
			address_zip TEXT,
			address_country TEXT DEFAULT 'Deutschland',
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS units (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			building_id INTEGER NOT NULL,
			unit_number TEXT NOT NULL,
			floor TEXT,
			area_sqm REAL NOT NULL DEFAULT 0 CHECK(area_sqm >= 0),
			persons_count INTEGER NOT NULL DEFAULT 0 CHECK(persons_count >= 0),
			occupant_name TEXT,
			occupant_email TEXT,
			occupant_phone TEXT,
			monthly_prepayment_cents INTEGER NOT NULL DEFAULT 0,
			is_vacant INTEGER DEFAULT 0,
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (building_id) REFERENCES buildings(id) ON DELETE CASCADE,
			UNIQUE(building_id, unit_number)
		)`,

		`CREATE TABLE IF NOT EXISTS meters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			meter_type TEXT NOT NULL CHECK(meter_type IN ('electricity', 'gas', 'water', 'heating')),
			building_id INTEGER NOT NULL,
			unit_id INTEGER,
			serial_number TEXT,
			connection_type TEXT NOT NULL DEFAULT 'manual' CHECK(connection_type IN ('manual', 'mqtt', 'modbus_tcp')),
			connection_config TEXT,
			notes TEXT,
			last_reading REAL DEFAULT 0,
			last_reading_time DATETIME,
			is_active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (building_id) REFERENCES buildings(id) ON DELETE CASCADE,
			FOREIGN KEY (unit_id) REFERENCES units(id) ON DELETE SET NULL
		)`,

		`CREATE TABLE IF NOT EXISTS meter_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meter_id INTEGER NOT NULL,
			reading_date DATETIME NOT NULL,
			value REAL NOT NULL,
			source TEXT DEFAULT 'manual',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (meter_id) REFERENCES meters(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS cost_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			building_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			annual_amount_cents INTEGER NOT NULL CHECK(annual_amount_cents >= 0),
			distribution_key TEXT NOT NULL CHECK(distribution_key IN ('area', 'persons', 'units', 'consumption')),
			consumption_group TEXT CHECK(consumption_group IN ('', 'heating', 'water', 'electricity')),
			is_active INTEGER DEFAULT 1 CHECK(is_active IN (0, 1)),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (building_id) REFERENCES buildings(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS billing_settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			building_id INTEGER NOT NULL UNIQUE,
			vacancy_costs_to_landlord INTEGER DEFAULT 1,
			currency TEXT DEFAULT 'EUR',
			sender_name TEXT,
			sender_address TEXT,
			sender_city TEXT,
			sender_zip TEXT,
			sender_country TEXT DEFAULT 'Deutschland',
			bank_name TEXT,
			bank_iban TEXT,
			bank_account_holder TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (building_id) REFERENCES buildings(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS statements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			statement_number TEXT UNIQUE NOT NULL,
			building_id INTEGER NOT NULL,
			unit_id INTEGER NOT NULL,
			period_start DATE NOT NULL,
			period_end DATE NOT NULL,
			total_allocated_cents INTEGER NOT NULL,
			prepayments_cents INTEGER NOT NULL,
			balance_cents INTEGER NOT NULL,
			currency TEXT DEFAULT 'EUR',
			status TEXT DEFAULT 'draft',
			pdf_path TEXT,
			generated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (building_id) REFERENCES buildings(id),
			FOREIGN KEY (unit_id) REFERENCES units(id)
		)`,

		`CREATE TABLE IF NOT EXISTS statement_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			statement_id INTEGER NOT NULL,
			cost_item_id INTEGER NOT NULL,
			description TEXT NOT NULL,
			distribution_key TEXT NOT NULL,
			share_percent REAL NOT NULL,
			amount_cents INTEGER NOT NULL,
			FOREIGN KEY (statement_id) REFERENCES statements(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS admin_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			details TEXT,
			user_id INTEGER,
			ip_address TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_units_building ON units(building_id)`,
		`CREATE INDEX IF NOT EXISTS idx_meters_building ON meters(building_id)`,
		`CREATE INDEX IF NOT EXISTS idx_meters_unit ON meters(unit_id)`,
		`CREATE INDEX IF NOT EXISTS idx_meter_readings_meter ON meter_readings(meter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_meter_readings_date ON meter_readings(reading_date)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_items_building ON cost_items(building_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_items_active ON cost_items(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_statements_building ON statements(building_id)`,
		`CREATE INDEX IF NOT EXISTS idx_statements_unit ON statements(unit_id)`,
		`CREATE INDEX IF NOT EXISTS idx_statement_lines_statement ON statement_lines(statement_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			// Log but don't fail on already-exists errors
			if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "duplicate") {
				log.Printf("Migration %d warning: %v", i+1, err)
			}
		}
	}

	log.Println("Base tables and indexes created/verified")

	if err := createTriggers(db); err != nil {
		log.Printf("Note: Triggers creation: %v", err)
	}

	if err := createDefaultAdmin(db); err != nil {
		return fmt.Errorf("failed to create default admin: %v", err)
	}

	log.Println("All migrations completed successfully")
	return nil
}

func createTriggers(db *sql.DB) error {
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS update_units_timestamp
		AFTER UPDATE ON units
		FOR EACH ROW
		BEGIN
			UPDATE units SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END`,

		`CREATE TRIGGER IF NOT EXISTS update_cost_items_timestamp
		AFTER UPDATE ON cost_items
		FOR EACH ROW
		BEGIN
			UPDATE cost_items SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END`,

		`CREATE TRIGGER IF NOT EXISTS update_billing_settings_timestamp
		AFTER UPDATE ON billing_settings
		FOR EACH ROW
		BEGIN
			UPDATE billing_settings SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END`,
	}

	for _, trigger := range triggers {
		if _, err := db.Exec(trigger); err != nil {
			// Triggers may already exist, don't fail
			if !strings.Contains(err.Error(), "already exists") {
				log.Printf("Note: Trigger warning: %v", err)
			}
		}
	}

	return nil
}

func createDefaultAdmin(db *sql.DB) error {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM admin_users").Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		_, err = db.Exec(`
			INSERT INTO admin_users (username, password_hash)
			VALUES (?, ?)
		`, "admin", string(hashedPassword))

		if err != nil {
			return err
		}

		log.Println("Default admin user created")
		log.Println("   Username: admin")
		log.Println("   Password: admin123")
		log.Println("   IMPORTANT: Change the default password immediately!")
	}

	return nil
}
