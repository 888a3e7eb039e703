package model

import "time"

// PartnerAvailability is a recurring weekly working window for a partner.
// A partner may have several windows on the same weekday; they are additive.
type PartnerAvailability struct {
	ID         int64     `json:"id"`
	PartnerID  int64     `json:"partner_id"`
	DayOfWeek  int       `json:"day_of_week"` // 0 = Sunday .. 6 = Saturday
	StartTime  string    `json:"start_time"`  // "HH:MM"
	EndTime    string    `json:"end_time"`    // "HH:MM"
	BreakStart string    `json:"break_start,omitempty"`
	BreakEnd   string    `json:"break_end,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasBreak reports whether both break bounds are configured.
func (a PartnerAvailability) HasBreak() bool {
	return a.BreakStart != "" && a.BreakEnd != ""
}

// PartnerBlockedDate removes availability for part or all of a calendar day,
// independent of the recurring weekly schedule. Empty StartTime/EndTime means
// the whole day is blocked.
type PartnerBlockedDate struct {
	ID          int64     `json:"id"`
	PartnerID   int64     `json:"partner_id"`
	BlockedDate string    `json:"blocked_date"` // "YYYY-MM-DD"
	StartTime   string    `json:"start_time,omitempty"`
	EndTime     string    `json:"end_time,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsFullDay reports whether the block covers the entire day.
func (b PartnerBlockedDate) IsFullDay() bool {
	return b.StartTime == "" || b.EndTime == ""
}
