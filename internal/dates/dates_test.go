package dates

import (
	"errors"
	"testing"
	"time"
)

var base = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) // a Wednesday

func TestParseAbsolute(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-11-02", time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)},
		{"2026-11-02 17:30", time.Date(2026, 11, 2, 17, 30, 0, 0, time.UTC)},
		{"2026-11-02T17:30:00Z", time.Date(2026, 11, 2, 17, 30, 0, 0, time.UTC)},
		{"  2026-11-02  ", time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input, base)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	got, err := Parse("tomorrow", base)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if got == nil {
		t.Fatal("Parse() = nil")
	}
	if got.Day() != 15 || got.Month() != time.October {
		t.Errorf("Parse(tomorrow) = %v, want Oct 15", got)
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse("   ", base)
	if err != nil || got != nil {
		t.Errorf("Parse(blank) = %v, %v; want nil, nil", got, err)
	}
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("purple elephant", base)
	if !errors.Is(err, ErrUnrecognized) {
		t.Errorf("Parse() error = %v, want ErrUnrecognized", err)
	}
}

func TestDescribe(t *testing.T) {
	at := func(days int) *time.Time {
		d := base.AddDate(0, 0, days)
		return &d
	}

	tests := []struct {
		name string
		due  *time.Time
		want string
	}{
		{"none", nil, ""},
		{"today", at(0), "due today"},
		{"tomorrow", at(1), "due tomorrow"},
		{"yesterday", at(-1), "overdue by 1d"},
		{"last week", at(-7), "overdue by 7d"},
		{"this week", at(4), "due in 4d"},
		{"far", at(30), "due Nov 13, 2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.due, base); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsOverdue(t *testing.T) {
	past := base.Add(-time.Minute)
	future := base.Add(time.Minute)

	if !IsOverdue(&past, base) {
		t.Error("past due date not overdue")
	}
	if IsOverdue(&future, base) {
		t.Error("future due date overdue")
	}
	if IsOverdue(nil, base) {
		t.Error("nil due date overdue")
	}
}
