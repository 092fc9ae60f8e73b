package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// MaxGenerated caps a single GenerateUpTo call. A series that is further
// behind catches up over several runs.
const MaxGenerated = 5000

// Next returns the first occurrence strictly after anchor. The boolean is
// false when the rule ends before that occurrence. The anchor's location and
// time of day carry over to the result.
func Next(r Rule, anchor time.Time) (time.Time, bool) {
	var next time.Time
	switch r.pattern {
	case Daily:
		next = anchor.AddDate(0, 0, r.interval)
	case Weekly:
		if r.hasWeekdays {
			next = r.nextMatchingWeekday(anchor)
		} else {
			next = anchor.AddDate(0, 0, 7*r.interval)
		}
	case Monthly:
		next = addMonthsClamped(anchor, r.interval, r.dayOfMonth)
	case Yearly:
		next = addMonthsClamped(anchor, 12*r.interval, r.yearDay)
	default:
		return time.Time{}, false
	}

	if !next.After(anchor) || r.pastEnd(next) {
		return time.Time{}, false
	}
	return next, true
}

// GenerateUpTo returns every occurrence in (anchor, horizon] in order.
func GenerateUpTo(r Rule, anchor, horizon time.Time) []time.Time {
	var dates []time.Time
	cur := anchor
	for len(dates) < MaxGenerated {
		next, ok := Next(r, cur)
		if !ok || next.After(horizon) {
			break
		}
		dates = append(dates, next)
		cur = next
	}
	return dates
}

// Preview returns up to count upcoming occurrences after anchor.
func Preview(r Rule, anchor time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	dates := make([]time.Time, 0, count)
	cur := anchor
	for len(dates) < count {
		next, ok := Next(r, cur)
		if !ok {
			break
		}
		dates = append(dates, next)
		cur = next
	}
	return dates
}

// nextMatchingWeekday scans the rest of anchor's week (weeks start on
// Sunday), then the week interval weeks later.
func (r Rule) nextMatchingWeekday(anchor time.Time) time.Time {
	for d := anchor.AddDate(0, 0, 1); d.Weekday() != time.Sunday; d = d.AddDate(0, 0, 1) {
		if r.weekdays[d.Weekday()] {
			return d
		}
	}
	weekStart := anchor.AddDate(0, 0, -int(anchor.Weekday()))
	target := weekStart.AddDate(0, 0, 7*r.interval)
	for i := 0; i < 7; i++ {
		d := target.AddDate(0, 0, i)
		if r.weekdays[d.Weekday()] {
			return d
		}
	}
	// Unreachable for a rule built by NewRule.
	return target
}

// pastEnd treats the end date as a calendar day, inclusive to its last instant.
func (r Rule) pastEnd(t time.Time) bool {
	if r.endDate == nil {
		return false
	}
	y, m, d := r.endDate.Date()
	cutoff := time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
	return t.After(cutoff)
}

// addMonthsClamped moves t forward by months and lands on day (t's own day
// when zero), clamped to the last day of the target month.
func addMonthsClamped(t time.Time, months, day int) time.Time {
	y, m, d := t.Date()
	if day == 0 {
		day = d
	}
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	ty, tm, _ := first.Date()
	if last := daysInMonth(tm, ty); day > last {
		day = last
	}
	return time.Date(ty, tm, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Describe renders the rule for editors and chat replies, e.g.
// "every 2 weeks on Mon, Fri".
func Describe(r Rule) string {
	unit := map[Pattern]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[r.pattern]
	if unit == "" {
		return "never"
	}

	var sb strings.Builder
	if r.interval == 1 {
		sb.WriteString("every " + unit)
	} else {
		sb.WriteString(fmt.Sprintf("every %d %ss", r.interval, unit))
	}
	if days := r.DaysOfWeek(); len(days) > 0 {
		names := make([]string, len(days))
		for i, d := range days {
			names[i] = weekdayNames[d]
		}
		sb.WriteString(" on " + strings.Join(names, ", "))
	}
	if r.dayOfMonth > 0 {
		sb.WriteString(fmt.Sprintf(" on day %d", r.dayOfMonth))
	}
	if end, ok := r.EndDate(); ok {
		sb.WriteString(" until " + end.Format("2006-01-02"))
	}
	if r.scheduleFrom == FromCompletionDate {
		sb.WriteString(" after completion")
	}
	return sb.String()
}
