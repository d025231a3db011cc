package preference

import (
	"testing"
	"time"
)

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    Clock
		wantErr bool
	}{
		{"22:00", Clock{22, 0}, false},
		{"08:30", Clock{8, 30}, false},
		{"07:15:00", Clock{7, 15}, false},
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"noon", Clock{}, true},
		{"12", Clock{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClock() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseClock() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuietHoursEnd(t *testing.T) {
	utc := time.UTC
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name       string
		now        time.Time
		start, end string
		loc        *time.Location
		wantIn     bool
		wantEnd    time.Time
	}{
		{
			name:  "overnight window before midnight",
			now:   time.Date(2026, 5, 4, 23, 0, 0, 0, utc),
			start: "22:00", end: "08:00", loc: utc,
			wantIn: true, wantEnd: time.Date(2026, 5, 5, 8, 0, 0, 0, utc),
		},
		{
			name:  "overnight window after midnight",
			now:   time.Date(2026, 5, 5, 3, 0, 0, 0, utc),
			start: "22:00", end: "08:00", loc: utc,
			wantIn: true, wantEnd: time.Date(2026, 5, 5, 8, 0, 0, 0, utc),
		},
		{
			name:  "overnight window outside",
			now:   time.Date(2026, 5, 5, 12, 0, 0, 0, utc),
			start: "22:00", end: "08:00", loc: utc,
			wantIn: false,
		},
		{
			name:  "end boundary is outside",
			now:   time.Date(2026, 5, 5, 8, 0, 0, 0, utc),
			start: "22:00", end: "08:00", loc: utc,
			wantIn: false,
		},
		{
			name:  "start boundary is inside",
			now:   time.Date(2026, 5, 5, 22, 0, 0, 0, utc),
			start: "22:00", end: "08:00", loc: utc,
			wantIn: true, wantEnd: time.Date(2026, 5, 6, 8, 0, 0, 0, utc),
		},
		{
			name:  "same-day window",
			now:   time.Date(2026, 5, 5, 13, 30, 0, 0, utc),
			start: "12:00", end: "14:00", loc: utc,
			wantIn: true, wantEnd: time.Date(2026, 5, 5, 14, 0, 0, 0, utc),
		},
		{
			name:  "empty window",
			now:   time.Date(2026, 5, 5, 13, 30, 0, 0, utc),
			start: "09:00", end: "09:00", loc: utc,
			wantIn: false,
		},
		{
			name:  "recipient zone differs from host",
			now:   time.Date(2026, 5, 5, 14, 0, 0, 0, utc), // 23:00 in Seoul
			start: "22:00", end: "08:00", loc: seoul,
			wantIn: true, wantEnd: time.Date(2026, 5, 6, 8, 0, 0, 0, seoul),
		},
		{
			name:  "month rollover",
			now:   time.Date(2026, 1, 31, 23, 0, 0, 0, utc),
			start: "22:00", end: "08:00", loc: utc,
			wantIn: true, wantEnd: time.Date(2026, 2, 1, 8, 0, 0, 0, utc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotEnd, gotIn := QuietHoursEnd(tt.now, mustClock(t, tt.start), mustClock(t, tt.end), tt.loc)
			if gotIn != tt.wantIn {
				t.Fatalf("in window = %v, want %v", gotIn, tt.wantIn)
			}
			if tt.wantIn && !gotEnd.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", gotEnd, tt.wantEnd)
			}
		})
	}
}

func TestQuietHours_DeferUntil(t *testing.T) {
	q := QuietHours{Start: Clock{22, 0}, End: Clock{8, 0}}
	now := time.Date(2026, 5, 4, 23, 0, 0, 0, time.UTC)

	if _, ok := q.DeferUntil(now); ok {
		t.Error("disabled window should never defer")
	}

	q.Enabled = true
	end, ok := q.DeferUntil(now)
	if !ok {
		t.Fatal("expected deferral inside window")
	}
	if want := time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}

	q.Timezone = "Not/AZone"
	if q.Location() != time.UTC {
		t.Error("unknown timezone should fall back to UTC")
	}
}
