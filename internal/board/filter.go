package board

import (
	"sort"
	"strings"
	"time"
)

// DueSoonWindow is how far ahead an open item counts as due soon.
const DueSoonWindow = 24 * time.Hour

// Classify reports how urgent an item is at now. Completed items and items
// without a due date are never urgent.
func Classify(due *time.Time, status Status, now time.Time) Urgency {
	if status == StatusCompleted || due == nil {
		return UrgencyNormal
	}
	switch {
	case due.Before(now):
		return UrgencyOverdue
	case !due.After(now.Add(DueSoonWindow)):
		return UrgencyDueSoon
	default:
		return UrgencyNormal
	}
}

// Filters are combined with AND. Zero values match everything, except
// ShowCompleted: completed items are hidden unless it is set or Status asks
// for completed explicitly.
type Filters struct {
	Status        Status   `json:"status,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
	SpaceID       *uint    `json:"spaceId,omitempty"`
	Urgency       Urgency  `json:"urgency,omitempty"`
	Search        string   `json:"search,omitempty"`
	ShowCompleted bool     `json:"showCompleted,omitempty"`
}

type SortField string

const (
	SortNone      SortField = ""
	SortTitle     SortField = "title"
	SortDueDate   SortField = "dueDate"
	SortPriority  SortField = "priority"
	SortStatus    SortField = "status"
	SortCreatedAt SortField = "createdAt"
)

// Sort orders by a single field. Ascending priority puts urgent first and
// ascending status puts todo first; items without a due date always go last.
type Sort struct {
	Field SortField `json:"field,omitempty"`
	Desc  bool      `json:"desc,omitempty"`
}

// Apply filters and stably sorts items, annotating each with its urgency.
// The input slice is left untouched.
func Apply(items []Item, f Filters, s Sort, now time.Time) []View {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	views := make([]View, 0, len(items))
	for _, it := range items {
		urgency := Classify(it.DueDate, it.Status, now)
		if !f.matches(it, urgency, search) {
			continue
		}
		views = append(views, View{Item: it, Urgency: urgency})
	}

	if s.Field != SortNone {
		sort.SliceStable(views, func(i, j int) bool {
			return less(views[i].Item, views[j].Item, s)
		})
	}
	return views
}

func (f Filters) matches(it Item, urgency Urgency, search string) bool {
	if it.Status == StatusCompleted && !f.ShowCompleted && f.Status != StatusCompleted {
		return false
	}
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.Priority != "" && it.Priority != f.Priority {
		return false
	}
	if f.SpaceID != nil && (it.SpaceID == nil || *it.SpaceID != *f.SpaceID) {
		return false
	}
	if f.Urgency != "" && urgency != f.Urgency {
		return false
	}
	if search != "" &&
		!strings.Contains(strings.ToLower(it.Title), search) &&
		!strings.Contains(strings.ToLower(it.Description), search) {
		return false
	}
	return true
}

func less(a, b Item, s Sort) bool {
	if s.Field == SortDueDate {
		// Missing due dates sort last in both directions.
		if (a.DueDate == nil) != (b.DueDate == nil) {
			return a.DueDate != nil
		}
		if a.DueDate == nil {
			return false
		}
	}
	if s.Desc {
		a, b = b, a
	}
	switch s.Field {
	case SortTitle:
		return a.Title < b.Title
	case SortDueDate:
		return a.DueDate.Before(*b.DueDate)
	case SortPriority:
		return a.Priority.rank() < b.Priority.rank()
	case SortStatus:
		return a.Status.rank() < b.Status.rank()
	case SortCreatedAt:
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return false
	}
}

// ParseSortField accepts the field names used in query strings.
func ParseSortField(raw string) (SortField, bool) {
	switch f := SortField(strings.TrimSpace(raw)); f {
	case SortNone, SortTitle, SortDueDate, SortPriority, SortStatus, SortCreatedAt:
		return f, true
	default:
		return SortNone, false
	}
}
