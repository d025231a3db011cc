package preference

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24-hour). A trailing ":SS" is accepted and
// ignored, matching the Postgres TIME text form.
func ParseClock(s string) (Clock, error) {
	var c Clock
	var sec int
	n, _ := fmt.Sscanf(s, "%d:%d:%d", &c.Hour, &c.Minute, &sec)
	if n < 2 {
		return Clock{}, fmt.Errorf("invalid clock %q", s)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return Clock{}, fmt.Errorf("clock out of range %q", s)
	}
	return c, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// QuietHours is a daily window in the recipient's time zone. Start after End
// means the window crosses midnight.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    Clock  `json:"start"`
	End      Clock  `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// Location resolves Timezone, falling back to UTC when empty or unknown.
func (q QuietHours) Location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DeferUntil reports whether now falls inside the window and, if so, when it
// ends.
func (q QuietHours) DeferUntil(now time.Time) (time.Time, bool) {
	if !q.Enabled {
		return time.Time{}, false
	}
	return QuietHoursEnd(now, q.Start, q.End, q.Location())
}

// QuietHoursEnd reports whether now is inside the [start, end) window
// evaluated in loc and returns the instant the window closes. A window whose
// start equals its end is empty.
func QuietHoursEnd(now time.Time, start, end Clock, loc *time.Location) (time.Time, bool) {
	if start == end {
		return time.Time{}, false
	}

	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	s, e := start.minutes(), end.minutes()

	endOn := func(dayOffset int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day()+dayOffset, end.Hour, end.Minute, 0, 0, loc)
	}

	if s < e {
		if m >= s && m < e {
			return endOn(0), true
		}
		return time.Time{}, false
	}

	// Window crosses midnight.
	switch {
	case m >= s:
		return endOn(1), true
	case m < e:
		return endOn(0), true
	default:
		return time.Time{}, false
	}
}
