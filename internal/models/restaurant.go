package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Restaurant struct {
	ID       string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name     string         `gorm:"column:name;type:text;not null" json:"name"`
	Cuisine  string         `gorm:"column:cuisine;type:text" json:"cuisine"`
	Address  string         `gorm:"column:address;type:text" json:"address"`
	Phone    string         `gorm:"column:phone;type:text" json:"phone"`
	Timezone string         `gorm:"column:timezone;type:text" json:"timezone"` // IANA, ex: "America/New_York"
	Tags     pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`

	Hours    datatypes.JSONType[WeeklyHours]        `gorm:"column:hours;type:jsonb" json:"hours"`
	Settings datatypes.JSONType[RestaurantSettings] `gorm:"column:settings;type:jsonb" json:"settings"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Restaurant) TableName() string { return "restaurants" }

// RestaurantSettings is the flexible per-restaurant configuration (JSONB).
type RestaurantSettings struct {
	Capacity            int    `json:"capacity"`              // seats
	DiningMinutes       int    `json:"dining_minutes"`        // how long a table is held
	SlotMinutes         int    `json:"slot_minutes"`          // alternative slot spacing
	LargePartyThreshold int    `json:"large_party_threshold"` // deposit note from this size up
	SMSMaxChars         int    `json:"sms_max_chars"`
	Tone                string `json:"tone,omitempty"` // professional|casual|formal
	Specials            string `json:"specials,omitempty"`
}

// WithDefaults fills zero fields.
func (s RestaurantSettings) WithDefaults() RestaurantSettings {
	if s.Capacity <= 0 {
		s.Capacity = 40
	}
	if s.DiningMinutes <= 0 {
		s.DiningMinutes = 90
	}
	if s.SlotMinutes <= 0 {
		s.SlotMinutes = 30
	}
	if s.LargePartyThreshold <= 0 {
		s.LargePartyThreshold = 8
	}
	if s.SMSMaxChars <= 0 {
		s.SMSMaxChars = 320
	}
	if s.Tone == "" {
		s.Tone = "professional"
	}
	return s
}

// DayHours uses "15:04" clock strings in the restaurant's timezone.
// Close at or before Open means the kitchen closes after midnight.
type DayHours struct {
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// WeeklyHours is keyed by lowercase weekday name ("monday").
type WeeklyHours map[string]DayHours

func (r *Restaurant) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (r *Restaurant) Config() RestaurantSettings { return r.Settings.Data().WithDefaults() }

func (r *Restaurant) HoursOn(day time.Weekday) (DayHours, bool) {
	h, ok := r.Hours.Data()[strings.ToLower(day.String())]
	if !ok || h.Closed || h.Open == "" || h.Close == "" {
		return DayHours{Closed: true}, false
	}
	return h, true
}

// OpenWindow returns the opening interval for the service day that starts on t's date.
func (r *Restaurant) OpenWindow(t time.Time) (time.Time, time.Time, bool) {
	t = t.In(r.Location())
	h, ok := r.HoursOn(t.Weekday())
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	open, err1 := clockOn(t, h.Open)
	closeAt, err2 := clockOn(t, h.Close)
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, false
	}
	if !closeAt.After(open) {
		closeAt = closeAt.Add(24 * time.Hour)
	}
	return open, closeAt, true
}

// IsOpenAt reports whether t falls inside opening hours, including a window
// that started the previous day and runs past midnight.
func (r *Restaurant) IsOpenAt(t time.Time) bool {
	t = t.In(r.Location())
	for _, day := range []time.Time{t, t.AddDate(0, 0, -1)} {
		open, closeAt, ok := r.OpenWindow(day)
		if ok && !t.Before(open) && t.Before(closeAt) {
			return true
		}
	}
	return false
}

// HoursSummary renders the week as "Monday: 11:00-22:00, Tuesday: closed, ...".
func (r *Restaurant) HoursSummary() string {
	parts := make([]string, 0, 7)
	for d := time.Monday; ; d = (d + 1) % 7 {
		parts = append(parts, r.DayHoursText(d))
		if d == time.Sunday {
			break
		}
	}
	return strings.Join(parts, ", ")
}

func (r *Restaurant) DayHoursText(d time.Weekday) string {
	h, ok := r.HoursOn(d)
	if !ok {
		return d.String() + ": closed"
	}
	return fmt.Sprintf("%s: %s-%s", d.String(), h.Open, h.Close)
}

func clockOn(day time.Time, clock string) (time.Time, error) {
	c, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, day.Location()), nil
}
