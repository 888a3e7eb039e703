package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinicbook/internal/model"
)

// ErrCorruptSettings is returned when the persisted hours column cannot be
// decoded; callers are expected to fall back to defaults.
var ErrCorruptSettings = errors.New("clinic settings row is corrupt")

// GetClinicSettings returns the singleton settings row. If no row exists yet
// it is created lazily with hard-coded defaults.
func (db *DB) GetClinicSettings(ctx context.Context) (*model.ClinicSettings, error) {
	row := db.QueryRowContext(ctx, `
		SELECT hours, allow_weekend_bookings, advance_booking_days,
		       min_booking_hours, max_booking_days,
		       allow_cancelled_movement, allow_completed_movement
		FROM clinic_settings WHERE id = 1`)

	var s model.ClinicSettings
	var hoursJSON string
	err := row.Scan(&hoursJSON, &s.AllowWeekendBookings, &s.AdvanceBookingDays,
		&s.MinBookingHours, &s.MaxBookingDays,
		&s.AllowCancelledMovement, &s.AllowCompletedMovement)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := model.DefaultClinicSettings()
			if err := db.SaveClinicSettings(ctx, defaults); err != nil {
				return nil, fmt.Errorf("create default settings: %w", err)
			}
			return defaults, nil
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(hoursJSON), &s.Hours); err != nil {
		return nil, fmt.Errorf("decode hours: %w", ErrCorruptSettings)
	}
	s.Normalize()
	return &s, nil
}

// SaveClinicSettings replaces the settings row wholesale.
func (db *DB) SaveClinicSettings(ctx context.Context, s *model.ClinicSettings) error {
	s.Normalize()
	hoursJSON, err := json.Marshal(s.Hours)
	if err != nil {
		return fmt.Errorf("encode hours: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO clinic_settings (
			id, hours, allow_weekend_bookings, advance_booking_days,
			min_booking_hours, max_booking_days,
			allow_cancelled_movement, allow_completed_movement, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hours = excluded.hours,
			allow_weekend_bookings = excluded.allow_weekend_bookings,
			advance_booking_days = excluded.advance_booking_days,
			min_booking_hours = excluded.min_booking_hours,
			max_booking_days = excluded.max_booking_days,
			allow_cancelled_movement = excluded.allow_cancelled_movement,
			allow_completed_movement = excluded.allow_completed_movement,
			updated_at = excluded.updated_at`,
		string(hoursJSON), s.AllowWeekendBookings, s.AdvanceBookingDays,
		s.MinBookingHours, s.MaxBookingDays,
		s.AllowCancelledMovement, s.AllowCompletedMovement, time.Now(),
	)
	return err
}
