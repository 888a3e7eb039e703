package schedule

import (
	"testing"
	"time"

	"clinicbook/internal/model"
)

func mondayUTC(t *testing.T) time.Time {
	t.Helper()
	d, err := model.ParseDate("2026-03-16", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func minutes(t *testing.T, clock string) int {
	t.Helper()
	m, err := model.ParseClock(clock)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestValidateBusinessHours(t *testing.T) {
	settings := model.DefaultClinicSettings()
	monday := mondayUTC(t)
	sunday := monday.AddDate(0, 0, -1)

	tests := []struct {
		name     string
		date     time.Time
		start    string
		end      string
		valid    bool
		wantRule Rule
	}{
		{"inside hours", monday, "09:00", "09:30", true, RuleNone},
		{"opens exactly at open", monday, "08:00", "08:30", true, RuleNone},
		{"before opening", monday, "07:30", "08:00", false, RuleOpen},
		{"ends exactly at close", monday, "17:30", "18:00", true, RuleNone},
		{"past closing", monday, "17:45", "18:15", false, RuleClose},
		{"ends exactly at lunch start", monday, "11:30", "12:00", true, RuleNone},
		{"starts exactly at lunch end", monday, "13:00", "13:30", true, RuleNone},
		{"inside lunch", monday, "12:15", "12:45", false, RuleLunch},
		{"straddles lunch start", monday, "11:45", "12:15", false, RuleLunch},
		{"spans whole lunch", monday, "11:00", "14:00", false, RuleLunch},
		{"closed day", sunday, "09:00", "09:30", false, RuleClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateBusinessHours(settings, tt.date, minutes(t, tt.start), minutes(t, tt.end))
			if res.Valid != tt.valid {
				t.Errorf("valid = %v, want %v (reason %q)", res.Valid, tt.valid, res.Reason)
			}
			if res.Rule != tt.wantRule {
				t.Errorf("rule = %q, want %q", res.Rule, tt.wantRule)
			}
			if !res.Valid && res.Reason == "" {
				t.Error("invalid result has empty reason")
			}
		})
	}
}

func TestValidateBusinessHours_NoHoursForWeekday(t *testing.T) {
	settings := &model.ClinicSettings{Hours: []model.DayHours{
		{DayOfWeek: 2, IsOpen: true, OpenTime: "08:00", CloseTime: "18:00"},
	}}
	monday := mondayUTC(t)

	res := ValidateBusinessHours(settings, monday, minutes(t, "09:00"), minutes(t, "09:30"))
	if res.Valid {
		t.Fatal("expected closed for weekday without configured hours")
	}
	if res.Rule != RuleClosed {
		t.Errorf("rule = %q, want %q", res.Rule, RuleClosed)
	}
}

func TestValidateBusinessHours_OpenEndedDay(t *testing.T) {
	// Open day with no open/close/lunch configured accepts any interval.
	settings := &model.ClinicSettings{Hours: []model.DayHours{
		{DayOfWeek: 1, IsOpen: true},
	}}
	monday := mondayUTC(t)

	res := ValidateBusinessHours(settings, monday, minutes(t, "06:00"), minutes(t, "23:00"))
	if !res.Valid {
		t.Errorf("expected valid, got %q", res.Reason)
	}
}

func TestValidateBookingAdvance(t *testing.T) {
	settings := model.DefaultClinicSettings()
	now := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC) // Monday 08:00

	tests := []struct {
		name  string
		at    time.Time
		valid bool
	}{
		{"comfortably ahead", now.Add(48 * time.Hour), true},
		{"exactly min lead", now.Add(time.Hour), true},
		{"too soon", now.Add(30 * time.Minute), false},
		{"in the past", now.Add(-time.Hour), false},
		{"too far ahead", now.AddDate(0, 0, 61), false},
		{"weekend", time.Date(2026, 3, 21, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateBookingAdvance(settings, tt.at, now)
			if res.Valid != tt.valid {
				t.Errorf("valid = %v, want %v (reason %q)", res.Valid, tt.valid, res.Reason)
			}
		})
	}
}

func TestValidateBookingAdvance_WeekendAllowed(t *testing.T) {
	settings := model.DefaultClinicSettings()
	settings.AllowWeekendBookings = true
	now := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 3, 21, 10, 0, 0, 0, time.UTC)

	if res := ValidateBookingAdvance(settings, saturday, now); !res.Valid {
		t.Errorf("expected weekend allowed, got %q", res.Reason)
	}
}

func TestValidateAppointmentMovement(t *testing.T) {
	settings := model.DefaultClinicSettings()

	for _, status := range []model.Status{
		model.StatusScheduled, model.StatusConfirmed, model.StatusInProgress, model.StatusNoShow,
	} {
		if res := ValidateAppointmentMovement(settings, status); !res.Valid {
			t.Errorf("status %s: expected movable, got %q", status, res.Reason)
		}
	}

	for _, status := range []model.Status{model.StatusCancelled, model.StatusCompleted} {
		if res := ValidateAppointmentMovement(settings, status); res.Valid {
			t.Errorf("status %s: expected movement rejected", status)
		}
	}

	settings.AllowCancelledMovement = true
	settings.AllowCompletedMovement = true
	for _, status := range []model.Status{model.StatusCancelled, model.StatusCompleted} {
		if res := ValidateAppointmentMovement(settings, status); !res.Valid {
			t.Errorf("status %s: expected movable with policy enabled, got %q", status, res.Reason)
		}
	}
}
