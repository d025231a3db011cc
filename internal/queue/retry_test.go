package queue

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{10, 1024 * time.Minute},
		{11, 24 * time.Hour},
		{64, 24 * time.Hour},
		{-1, time.Minute},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestBackoffMonotonic(t *testing.T) {
	prev := Backoff(0)
	for n := 1; n <= 10; n++ {
		d := Backoff(n)
		if d <= prev {
			t.Errorf("Backoff(%d) = %v, not greater than Backoff(%d) = %v", n, d, n-1, prev)
		}
		prev = d
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityNormal, false},
		{"urgent", PriorityUrgent, false},
		{"low", PriorityLow, false},
		{"critical", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
