package tenant

import (
	"strings"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
)

// HoursPredicate decides whether a dealer line is within business hours.
type HoursPredicate interface {
	IsOpen(schedule domain.JSONB, now time.Time) bool
}

// WeeklySchedule reads {"timezone": "America/Chicago", "mon": ["08:00", "17:00"], ...}.
// An empty or unreadable schedule is always open. A readable schedule without
// an entry for the current weekday is closed that day.
type WeeklySchedule struct{}

var weekdayKeys = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

func (WeeklySchedule) IsOpen(schedule domain.JSONB, now time.Time) bool {
	if len(schedule) == 0 {
		return true
	}

	loc := time.UTC
	if tz, ok := schedule["timezone"].(string); ok && tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	raw, ok := schedule[weekdayKeys[local.Weekday()]]
	if !ok || raw == nil {
		return false
	}
	var window []interface{}
	switch w := raw.(type) {
	case []interface{}:
		window = w
	case []string:
		for _, v := range w {
			window = append(window, v)
		}
	}
	if len(window) != 2 {
		return true
	}
	openAt, ok1 := parseClock(window[0])
	closeAt, ok2 := parseClock(window[1])
	if !ok1 || !ok2 {
		return true
	}

	minute := local.Hour()*60 + local.Minute()
	if closeAt <= openAt {
		// overnight window such as ["22:00", "06:00"]
		return minute >= openAt || minute < closeAt
	}
	return minute >= openAt && minute < closeAt
}

func parseClock(v interface{}) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
