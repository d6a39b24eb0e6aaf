package common

import (
	"testing"
	"time"
)

// at builds a Shanghai-local time on a known Wednesday (2025-06-11).
func at(hour, min int) time.Time {
	return time.Date(2025, 6, 11, hour, min, 0, 0, shanghaiLocation)
}

func TestCalendar_IsTradingTime(t *testing.T) {
	cal := NewCalendar()

	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"pre-open", at(9, 15), false},
		{"open", at(9, 30), true},
		{"mid-morning", at(10, 5), true},
		{"lunch break", at(12, 0), false},
		{"afternoon open", at(13, 0), true},
		{"close", at(15, 0), true},
		{"after close", at(15, 1), false},
		{"saturday", time.Date(2025, 6, 14, 10, 0, 0, 0, shanghaiLocation), false},
		{"sunday", time.Date(2025, 6, 15, 10, 0, 0, 0, shanghaiLocation), false},
	}

	for _, tc := range cases {
		if got := cal.IsTradingTime(tc.t); got != tc.want {
			t.Errorf("%s: IsTradingTime(%v) = %v, want %v", tc.name, tc.t, got, tc.want)
		}
	}
}

func TestCalendar_IsForceUpdateDay(t *testing.T) {
	cal := NewCalendar()

	saturday := time.Date(2025, 6, 14, 3, 0, 0, 0, shanghaiLocation)
	if !cal.IsForceUpdateDay(saturday) {
		t.Error("Saturday should be a force update day")
	}
	if cal.IsForceUpdateDay(at(10, 0)) {
		t.Error("Wednesday should not be a force update day")
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"20250611", "2025-06-11", false},
		{"2025-06-11", "2025-06-11", false},
		{"2025/06/11", "2025-06-11", false},
		{"2025-06-11T15:04:05", "2025-06-11", false},
		{"2025-06-11 15:04:05", "2025-06-11", false},
		{"", "", true},
		{"junk", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizeDate(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeDate(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeDate(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompactDate(t *testing.T) {
	if got := CompactDate("2025-06-11"); got != "20250611" {
		t.Errorf("CompactDate = %q, want 20250611", got)
	}
}
