package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Pattern string

const (
	Daily   Pattern = "daily"
	Weekly  Pattern = "weekly"
	Monthly Pattern = "monthly"
	Yearly  Pattern = "yearly"
)

type ScheduleFrom string

const (
	FromDueDate        ScheduleFrom = "due_date"
	FromCompletionDate ScheduleFrom = "completion_date"
)

// InvalidRuleError names the rule field that failed validation.
type InvalidRuleError struct {
	Field  string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule: %s %s", e.Field, e.Reason)
}

// RuleSpec is the editable form of a rule as it arrives from forms, JSON and
// database rows. It becomes a Rule only through NewRule.
type RuleSpec struct {
	Pattern      Pattern      `json:"pattern"`
	Interval     int          `json:"interval,omitempty"`
	DaysOfWeek   []int        `json:"daysOfWeek,omitempty"`
	DayOfMonth   *int         `json:"dayOfMonth,omitempty"`
	EndDate      *time.Time   `json:"endDate,omitempty"`
	ScheduleFrom ScheduleFrom `json:"scheduleFrom,omitempty"`
}

// Rule is an immutable, validated recurrence rule.
type Rule struct {
	pattern      Pattern
	interval     int
	weekdays     [7]bool
	hasWeekdays  bool
	dayOfMonth   int
	endDate      *time.Time
	scheduleFrom ScheduleFrom
	// yearDay pins yearly rules to a day of the month; see PinnedTo.
	yearDay int
}

// NewRule validates spec and returns the rule it describes.
// A zero Interval means 1 and an empty ScheduleFrom means due_date.
func NewRule(spec RuleSpec) (Rule, error) {
	r := Rule{
		pattern:      spec.Pattern,
		interval:     spec.Interval,
		scheduleFrom: spec.ScheduleFrom,
	}

	switch spec.Pattern {
	case Daily, Weekly, Monthly, Yearly:
	case "":
		return Rule{}, &InvalidRuleError{Field: "pattern", Reason: "is required"}
	default:
		return Rule{}, &InvalidRuleError{Field: "pattern", Reason: fmt.Sprintf("%q is not one of daily, weekly, monthly, yearly", spec.Pattern)}
	}

	if r.interval == 0 {
		r.interval = 1
	}
	if r.interval < 1 {
		return Rule{}, &InvalidRuleError{Field: "interval", Reason: "must be at least 1"}
	}

	if spec.DaysOfWeek != nil {
		if spec.Pattern != Weekly {
			return Rule{}, &InvalidRuleError{Field: "daysOfWeek", Reason: "is only allowed for weekly rules"}
		}
		if len(spec.DaysOfWeek) == 0 {
			return Rule{}, &InvalidRuleError{Field: "daysOfWeek", Reason: "must not be empty"}
		}
		for _, d := range spec.DaysOfWeek {
			if d < 0 || d > 6 {
				return Rule{}, &InvalidRuleError{Field: "daysOfWeek", Reason: fmt.Sprintf("weekday %d is outside 0..6", d)}
			}
			r.weekdays[d] = true
		}
		r.hasWeekdays = true
	}

	if spec.DayOfMonth != nil {
		if spec.Pattern != Monthly {
			return Rule{}, &InvalidRuleError{Field: "dayOfMonth", Reason: "is only allowed for monthly rules"}
		}
		if *spec.DayOfMonth < 1 || *spec.DayOfMonth > 31 {
			return Rule{}, &InvalidRuleError{Field: "dayOfMonth", Reason: "must be between 1 and 31"}
		}
		r.dayOfMonth = *spec.DayOfMonth
	}

	if spec.EndDate != nil {
		end := *spec.EndDate
		r.endDate = &end
	}

	switch spec.ScheduleFrom {
	case FromDueDate, FromCompletionDate:
	case "":
		r.scheduleFrom = FromDueDate
	default:
		return Rule{}, &InvalidRuleError{Field: "scheduleFrom", Reason: fmt.Sprintf("%q is not one of due_date, completion_date", spec.ScheduleFrom)}
	}

	return r, nil
}

// Validate reports whether spec would produce a valid rule.
func Validate(spec RuleSpec) error {
	_, err := NewRule(spec)
	return err
}

func (r Rule) Pattern() Pattern           { return r.pattern }
func (r Rule) Interval() int              { return r.interval }
func (r Rule) ScheduleFrom() ScheduleFrom { return r.scheduleFrom }

// PinnedTo returns a copy of a yearly rule that lands on day whenever the
// target month has it, so a Feb 29 series returns to Feb 29 in leap years.
// Other patterns are returned unchanged.
func (r Rule) PinnedTo(day int) Rule {
	if r.pattern == Yearly && day >= 1 && day <= 31 {
		r.yearDay = day
	}
	return r
}

// DayOfMonth returns the configured day, or 0 when the anchor's day is used.
func (r Rule) DayOfMonth() int { return r.dayOfMonth }

func (r Rule) EndDate() (time.Time, bool) {
	if r.endDate == nil {
		return time.Time{}, false
	}
	return *r.endDate, true
}

// DaysOfWeek returns the weekday set in ascending order, or nil.
func (r Rule) DaysOfWeek() []int {
	if !r.hasWeekdays {
		return nil
	}
	days := make([]int, 0, 7)
	for d, ok := range r.weekdays {
		if ok {
			days = append(days, d)
		}
	}
	return days
}

// Spec returns an editable copy of the rule.
func (r Rule) Spec() RuleSpec {
	spec := RuleSpec{
		Pattern:      r.pattern,
		Interval:     r.interval,
		DaysOfWeek:   r.DaysOfWeek(),
		ScheduleFrom: r.scheduleFrom,
	}
	if r.dayOfMonth > 0 {
		dom := r.dayOfMonth
		spec.DayOfMonth = &dom
	}
	if r.endDate != nil {
		end := *r.endDate
		spec.EndDate = &end
	}
	return spec
}

// FormatWeekdays renders a weekday set as "1,3,5" for storage.
func FormatWeekdays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, d := range sorted {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ParseWeekdays is the inverse of FormatWeekdays. An empty string yields nil.
func ParseWeekdays(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, &InvalidRuleError{Field: "daysOfWeek", Reason: fmt.Sprintf("%q is not a weekday index", p)}
		}
		days = append(days, d)
	}
	return days, nil
}
