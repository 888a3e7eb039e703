package model

// DayHours describes the clinic schedule for a single weekday.
// When IsOpen is false the remaining fields are meaningless and must be
// ignored rather than validated.
type DayHours struct {
	DayOfWeek       int    `json:"day_of_week"` // 0 = Sunday .. 6 = Saturday
	IsOpen          bool   `json:"is_open"`
	OpenTime        string `json:"open_time,omitempty"`
	CloseTime       string `json:"close_time,omitempty"`
	LunchBreakStart string `json:"lunch_break_start,omitempty"`
	LunchBreakEnd   string `json:"lunch_break_end,omitempty"`
}

// HasLunch reports whether both lunch bounds are configured.
func (d DayHours) HasLunch() bool {
	return d.LunchBreakStart != "" && d.LunchBreakEnd != ""
}

// ClinicSettings is the clinic-wide scheduling policy. A deployment has a
// single row, created lazily with defaults on first read.
type ClinicSettings struct {
	Hours                  []DayHours `json:"hours"`
	AllowWeekendBookings   bool       `json:"allow_weekend_bookings"`
	AdvanceBookingDays     int        `json:"advance_booking_days"`
	MinBookingHours        int        `json:"min_booking_hours"`
	MaxBookingDays         int        `json:"max_booking_days"`
	AllowCancelledMovement bool       `json:"allow_cancelled_movement"`
	AllowCompletedMovement bool       `json:"allow_completed_movement"`
}

// HoursFor returns the configured hours for a weekday (0=Sunday..6=Saturday).
func (s *ClinicSettings) HoursFor(weekday int) (DayHours, bool) {
	for _, d := range s.Hours {
		if d.DayOfWeek == weekday {
			return d, true
		}
	}
	return DayHours{}, false
}

// Normalize enforces the at-most-one-DayHours-per-weekday invariant by
// keeping the first entry for each weekday.
func (s *ClinicSettings) Normalize() {
	seen := make(map[int]bool, 7)
	out := s.Hours[:0]
	for _, d := range s.Hours {
		if d.DayOfWeek < 0 || d.DayOfWeek > 6 || seen[d.DayOfWeek] {
			continue
		}
		seen[d.DayOfWeek] = true
		out = append(out, d)
	}
	s.Hours = out
}

// DefaultClinicSettings returns the hard-coded policy used when no settings
// row exists yet or the persisted row cannot be decoded.
func DefaultClinicSettings() *ClinicSettings {
	hours := make([]DayHours, 0, 7)
	for wd := 0; wd <= 6; wd++ {
		open := wd >= 1 && wd <= 5
		d := DayHours{DayOfWeek: wd, IsOpen: open}
		if open {
			d.OpenTime = "08:00"
			d.CloseTime = "18:00"
			d.LunchBreakStart = "12:00"
			d.LunchBreakEnd = "13:00"
		}
		hours = append(hours, d)
	}
	return &ClinicSettings{
		Hours:                  hours,
		AllowWeekendBookings:   false,
		AdvanceBookingDays:     30,
		MinBookingHours:        1,
		MaxBookingDays:         60,
		AllowCancelledMovement: false,
		AllowCompletedMovement: false,
	}
}
