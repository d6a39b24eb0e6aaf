package common

import (
	"fmt"
	"strings"
	"time"
)

// shanghaiLocation is the Asia/Shanghai timezone used for all session
// calculations. A-shares have no DST, so a fixed zone is a safe fallback
// when tzdata is unavailable (e.g. minimal container).
var shanghaiLocation = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// Calendar answers trading-session questions for the A-share market.
// Holidays beyond weekend exclusion are not modelled; empty fetch days
// are tolerated downstream.
type Calendar struct {
	loc *time.Location
	now func() time.Time // injectable clock for testing
}

// NewCalendar creates a calendar using the Asia/Shanghai timezone.
func NewCalendar() *Calendar {
	return &Calendar{loc: shanghaiLocation, now: time.Now}
}

// NewCalendarAt creates a calendar with a fixed clock, for tests.
func NewCalendarAt(now func() time.Time) *Calendar {
	return &Calendar{loc: shanghaiLocation, now: now}
}

// Now returns the current time in the market timezone.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Location returns the market timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether t falls on a weekday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsTradingTime reports whether t is inside a trading session:
// 09:30-11:30 or 13:00-15:00 local, Monday to Friday.
func (c *Calendar) IsTradingTime(t time.Time) bool {
	t = t.In(c.loc)
	if !c.IsTradingDay(t) {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	morning := minutes >= 9*60+30 && minutes <= 11*60+30
	afternoon := minutes >= 13*60 && minutes <= 15*60
	return morning || afternoon
}

// IsForceUpdateDay reports whether t is a day on which a full bar refresh
// is unconditionally eligible (Saturday).
func (c *Calendar) IsForceUpdateDay(t time.Time) bool {
	return t.In(c.loc).Weekday() == time.Saturday
}

// NormalizeDate accepts YYYYMMDD, YYYY-MM-DD or an ISO timestamp and
// returns the canonical YYYY-MM-DD form.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}

	// ISO timestamp: keep the date part
	if idx := strings.IndexAny(s, "T "); idx > 0 {
		s = s[:idx]
	}

	for _, layout := range []string{"2006-01-02", "20060102", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date format: %q", s)
}

// CompactDate converts a canonical YYYY-MM-DD into the YYYYMMDD form used
// by the Tushare API.
func CompactDate(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

// ParseLocalTime parses a "2006-01-02 15:04:05" timestamp in the market
// timezone.
func ParseLocalTime(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", s, shanghaiLocation)
}

// ParseTradeDate parses a bar trade date in either accepted form.
func ParseTradeDate(s string) (time.Time, error) {
	norm, err := NormalizeDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation("2006-01-02", norm, shanghaiLocation)
}
