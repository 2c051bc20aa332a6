package alerts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
)

// clockTime is a wall-clock time of day in minutes after midnight
type clockTime int

func parseClockTime(s string) (clockTime, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return clockTime(hour*60 + minute), nil
}

// QuietHours is a daily [Start, End) window in a time zone. Windows where
// Start is after End span midnight.
type QuietHours struct {
	start, end clockTime
	loc        *time.Location
}

// ParseQuietHours builds the window from notification preferences. It
// returns nil when quiet hours are disabled or the window is empty.
func ParseQuietHours(p models.NotificationPrefs, defaultZone string) (*QuietHours, error) {
	if !p.QuietHoursEnabled {
		return nil, nil
	}
	start, err := parseClockTime(p.QuietStart)
	if err != nil {
		return nil, fmt.Errorf("quiet start: %w", err)
	}
	end, err := parseClockTime(p.QuietEnd)
	if err != nil {
		return nil, fmt.Errorf("quiet end: %w", err)
	}
	if start == end {
		return nil, nil
	}

	zone := p.TimeZone
	if zone == "" {
		zone = defaultZone
	}
	loc := time.UTC
	if zone != "" {
		if loc, err = time.LoadLocation(zone); err != nil {
			return nil, fmt.Errorf("time zone %q: %w", zone, err)
		}
	}
	return &QuietHours{start: start, end: end, loc: loc}, nil
}

// Contains reports whether t falls inside the window and, if so, when the
// window ends
func (q *QuietHours) Contains(t time.Time) (bool, time.Time) {
	if q == nil {
		return false, time.Time{}
	}
	local := t.In(q.loc)
	now := clockTime(local.Hour()*60 + local.Minute())
	endOn := func(days int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day()+days, int(q.end)/60, int(q.end)%60, 0, 0, q.loc)
	}

	if q.start < q.end {
		if now >= q.start && now < q.end {
			return true, endOn(0)
		}
		return false, time.Time{}
	}

	// Spans midnight
	switch {
	case now >= q.start:
		return true, endOn(1)
	case now < q.end:
		return true, endOn(0)
	}
	return false, time.Time{}
}
