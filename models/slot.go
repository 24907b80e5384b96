package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is a single booking instant: a calendar date plus a wall-clock time
// in the branch's timezone.
type Slot struct {
	Date string `gorm:"column:slot_date" json:"date"`
	Time string `gorm:"column:slot_time" json:"time"`
}

// ParseSlot validates a date and time and normalizes them to
// YYYY-MM-DD and HH:MM. Seconds are accepted and dropped.
func ParseSlot(date, clock string) (Slot, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}

	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		t, err = time.Parse("15:04:05", clock)
		if err != nil {
			return Slot{}, fmt.Errorf("invalid time %q: expected HH:MM", clock)
		}
	}

	return Slot{Date: d.Format(DateLayout), Time: t.Format(TimeLayout)}, nil
}

func (s Slot) String() string {
	return s.Date + " " + s.Time
}
