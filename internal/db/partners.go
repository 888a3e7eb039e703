package db

import (
	"context"
	"database/sql"
	"time"

	"clinicbook/internal/model"
)

// ListAvailability returns every availability window for a partner, active
// and inactive; filtering by weekday happens in the schedule package.
func (db *DB) ListAvailability(ctx context.Context, partnerID int64) ([]model.PartnerAvailability, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, partner_id, day_of_week, start_time, end_time,
		       break_start, break_end, active, created_at, updated_at
		FROM partner_availability
		WHERE partner_id = ?
		ORDER BY day_of_week, start_time`, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.PartnerAvailability
	for rows.Next() {
		var w model.PartnerAvailability
		var breakStart, breakEnd sql.NullString
		if err := rows.Scan(
			&w.ID, &w.PartnerID, &w.DayOfWeek, &w.StartTime, &w.EndTime,
			&breakStart, &breakEnd, &w.Active, &w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if breakStart.Valid {
			w.BreakStart = breakStart.String
		}
		if breakEnd.Valid {
			w.BreakEnd = breakEnd.String
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// CreateAvailability inserts a weekly availability window.
func (db *DB) CreateAvailability(ctx context.Context, w *model.PartnerAvailability) error {
	now := time.Now()
	result, err := db.ExecContext(ctx, `
		INSERT INTO partner_availability (
			partner_id, day_of_week, start_time, end_time,
			break_start, break_end, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.PartnerID, w.DayOfWeek, w.StartTime, w.EndTime,
		nullString(w.BreakStart), nullString(w.BreakEnd), w.Active, now, now,
	)
	if err != nil {
		return err
	}
	w.ID, err = result.LastInsertId()
	return err
}

// DeactivateAvailability marks a window inactive without deleting history.
func (db *DB) DeactivateAvailability(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE partner_availability SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}

// ListBlockedDates returns active blocks for a partner on a date.
func (db *DB) ListBlockedDates(ctx context.Context, partnerID int64, date string) ([]model.PartnerBlockedDate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, partner_id, blocked_date, start_time, end_time,
		       reason, active, created_at, updated_at
		FROM partner_blocked_dates
		WHERE partner_id = ? AND blocked_date = ? AND active = 1
		ORDER BY start_time`, partnerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []model.PartnerBlockedDate
	for rows.Next() {
		var b model.PartnerBlockedDate
		var startTime, endTime, reason sql.NullString
		if err := rows.Scan(
			&b.ID, &b.PartnerID, &b.BlockedDate, &startTime, &endTime,
			&reason, &b.Active, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if startTime.Valid {
			b.StartTime = startTime.String
		}
		if endTime.Valid {
			b.EndTime = endTime.String
		}
		if reason.Valid {
			b.Reason = reason.String
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// CreateBlockedDate inserts a blocked-date exception for a partner.
func (db *DB) CreateBlockedDate(ctx context.Context, b *model.PartnerBlockedDate) error {
	now := time.Now()
	result, err := db.ExecContext(ctx, `
		INSERT INTO partner_blocked_dates (
			partner_id, blocked_date, start_time, end_time,
			reason, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.PartnerID, b.BlockedDate, nullString(b.StartTime), nullString(b.EndTime),
		nullString(b.Reason), b.Active, now, now,
	)
	if err != nil {
		return err
	}
	b.ID, err = result.LastInsertId()
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
