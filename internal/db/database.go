// Package db implements sqlite persistence for the booking core.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the booking service.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Appointments; patient/partner/service/room ids reference the
		// external practice directory and are not foreign keys here.
		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			patient_id INTEGER NOT NULL,
			partner_id INTEGER NOT NULL,
			product_service_id INTEGER NOT NULL,
			room_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			is_encaixe BOOLEAN NOT NULL DEFAULT 0,
			observations TEXT,
			check_in DATETIME,
			check_out DATETIME,
			cancellation_reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1
		)`,

		// Recurring weekly availability windows per partner
		`CREATE TABLE IF NOT EXISTS partner_availability (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			partner_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			break_start TEXT,
			break_end TEXT,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Date-specific blocks overriding the weekly schedule
		`CREATE TABLE IF NOT EXISTS partner_blocked_dates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			partner_id INTEGER NOT NULL,
			blocked_date TEXT NOT NULL,
			start_time TEXT,
			end_time TEXT,
			reason TEXT,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Clinic-wide policy singleton; hours stored as a JSON array
		`CREATE TABLE IF NOT EXISTS clinic_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			hours TEXT NOT NULL,
			allow_weekend_bookings BOOLEAN NOT NULL DEFAULT 0,
			advance_booking_days INTEGER NOT NULL DEFAULT 30,
			min_booking_hours INTEGER NOT NULL DEFAULT 1,
			max_booking_days INTEGER NOT NULL DEFAULT 60,
			allow_cancelled_movement BOOLEAN NOT NULL DEFAULT 0,
			allow_completed_movement BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_appointments_partner_date ON appointments(partner_id, date, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_availability_partner ON partner_availability(partner_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_partner_date ON partner_blocked_dates(partner_id, blocked_date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
