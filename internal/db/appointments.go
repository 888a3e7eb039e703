package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicbook/internal/model"
)

// ErrStaleVersion is returned when an optimistic-concurrency update finds the
// row already changed by someone else.
var ErrStaleVersion = errors.New("appointment version is stale")

const appointmentColumns = `id, patient_id, partner_id, product_service_id, room_id,
	date, start_time, end_time, type, status, is_encaixe, observations,
	check_in, check_out, cancellation_reason, created_at, updated_at, version`

// GetAppointment returns an appointment by id, or (nil, nil) when absent.
func (db *DB) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments WHERE id = ?`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return appt, nil
}

// ListPartnerDay returns all non-cancelled appointments for a partner on a
// date, ordered by start time.
func (db *DB) ListPartnerDay(ctx context.Context, partnerID int64, date string) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE partner_id = ? AND date = ? AND status != 'cancelled'
		ORDER BY start_time`, partnerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, *appt)
	}
	return appointments, rows.Err()
}

// CreateAppointment inserts a new appointment and fills in its id.
func (db *DB) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO appointments (
			patient_id, partner_id, product_service_id, room_id,
			date, start_time, end_time, type, status, is_encaixe,
			observations, cancellation_reason, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PatientID, a.PartnerID, a.ProductServiceID, a.RoomID,
		a.Date, a.StartTime, a.EndTime, string(a.Type), string(a.Status), a.IsEncaixe,
		a.Observations, a.CancellationReason, a.CreatedAt, a.UpdatedAt, a.Version,
	)
	if err != nil {
		return err
	}
	a.ID, err = result.LastInsertId()
	return err
}

// UpdateAppointment persists every mutable field with an optimistic version
// check; the in-memory version is bumped on success.
func (db *DB) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	result, err := db.ExecContext(ctx, `
		UPDATE appointments SET
			patient_id = ?, partner_id = ?, product_service_id = ?, room_id = ?,
			date = ?, start_time = ?, end_time = ?, type = ?, status = ?,
			observations = ?, check_in = ?, check_out = ?,
			cancellation_reason = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		a.PatientID, a.PartnerID, a.ProductServiceID, a.RoomID,
		a.Date, a.StartTime, a.EndTime, string(a.Type), string(a.Status),
		a.Observations, nullTime(a.CheckIn), nullTime(a.CheckOut),
		a.CancellationReason, a.UpdatedAt,
		a.ID, a.Version,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("update appointment %d: %w", a.ID, ErrStaleVersion)
	}
	a.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	var apptType, status string
	var observations, cancellationReason sql.NullString
	var checkIn, checkOut sql.NullTime
	err := row.Scan(
		&a.ID, &a.PatientID, &a.PartnerID, &a.ProductServiceID, &a.RoomID,
		&a.Date, &a.StartTime, &a.EndTime, &apptType, &status, &a.IsEncaixe,
		&observations, &checkIn, &checkOut, &cancellationReason,
		&a.CreatedAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	a.Type = model.AppointmentType(apptType)
	a.Status = model.Status(status)
	if observations.Valid {
		a.Observations = observations.String
	}
	if cancellationReason.Valid {
		a.CancellationReason = cancellationReason.String
	}
	if checkIn.Valid {
		t := checkIn.Time
		a.CheckIn = &t
	}
	if checkOut.Valid {
		t := checkOut.Time
		a.CheckOut = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
