package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"0 4 * * *", false},
		{"*/15 * * * *", false},
		{"0 0 1 1 0", false},
		{"30 2-6 * * 1-5", false},
		{"0-59/10 * * * *", false},
		{"1,15,30 * * * *", false},
		{"* * * *", true},
		{"* * * * * *", true},
		{"60 * * * *", true},
		{"* 24 * * *", true},
		{"abc * * * *", true},
		{"*/0 * * * *", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestCronMatches(t *testing.T) {
	// 2026-08-31 is a Monday.
	monday0400 := time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		at   time.Time
		want bool
	}{
		{"* * * * *", monday0400, true},
		{"0 4 * * *", monday0400, true},
		{"0 5 * * *", monday0400, false},
		{"0 4 * * 1", monday0400, true},
		{"0 4 * * 0", monday0400, false},
		{"*/15 * * * *", monday0400.Add(30 * time.Minute), true},
		{"*/15 * * * *", monday0400.Add(7 * time.Minute), false},
		{"0 4 31 8 *", monday0400, true},
		{"0 4 30 8 *", monday0400, false},
	}

	for _, tt := range tests {
		expr, err := ParseCron(tt.expr)
		if err != nil {
			t.Fatalf("ParseCron(%q): %v", tt.expr, err)
		}
		if got := expr.Matches(tt.at); got != tt.want {
			t.Errorf("%q.Matches(%s) = %v, want %v", tt.expr, tt.at, got, tt.want)
		}
	}
}

func TestCronNext(t *testing.T) {
	base := time.Date(2026, 8, 31, 3, 59, 30, 0, time.UTC)

	expr, err := ParseCron("0 4 * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}
	next := expr.Next(base)
	want := time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %s, want %s", next, want)
	}

	// From exactly 04:00 the next run is tomorrow.
	next = expr.Next(want)
	if !next.Equal(want.AddDate(0, 0, 1)) {
		t.Errorf("Next from match = %s, want next day", next)
	}
}
