// Package dates parses and describes task due dates at the presentation edge.
//
// Input may be an absolute date ("2026-11-02", RFC3339) or natural language
// ("tomorrow 5pm", "next friday"). Parsed values are returned in UTC.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnrecognized is returned when input is not a date.
var ErrUnrecognized = errors.New("unrecognized date")

var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse interprets input relative to now. Empty input means "no due date"
// and returns nil.
func Parse(input string, now time.Time) (*time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	r, err := parser.Parse(input, now)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", input, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%q: %w", input, ErrUnrecognized)
	}
	t := r.Time.UTC().Truncate(time.Second)
	return &t, nil
}

// Describe renders due relative to now, e.g. "due today", "overdue by 3d".
// A nil due date renders as "".
func Describe(due *time.Time, now time.Time) string {
	if due == nil {
		return ""
	}

	loc := now.Location()
	d := due.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	days := int(day.Sub(today).Hours() / 24)

	switch {
	case days == 0:
		return "due today"
	case days == 1:
		return "due tomorrow"
	case days == -1:
		return "overdue by 1d"
	case days < 0:
		return fmt.Sprintf("overdue by %dd", -days)
	case days < 7:
		return fmt.Sprintf("due in %dd", days)
	default:
		return "due " + d.Format("Jan 2, 2006")
	}
}

// IsOverdue reports whether due is strictly before now.
func IsOverdue(due *time.Time, now time.Time) bool {
	return due != nil && due.Before(now)
}
