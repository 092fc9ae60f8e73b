package board

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusReview, StatusCompleted}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s.rank() < 0 {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

func (s Status) rank() int {
	switch s {
	case StatusTodo:
		return 0
	case StatusInProgress:
		return 1
	case StatusReview:
		return 2
	case StatusCompleted:
		return 3
	default:
		return -1
	}
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if p.rank() < 0 {
		return "", fmt.Errorf("unknown priority %q", raw)
	}
	return p, nil
}

// rank orders priorities most urgent first.
func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return -1
	}
}

type Urgency string

const (
	UrgencyOverdue Urgency = "overdue"
	UrgencyDueSoon Urgency = "due_soon"
	UrgencyNormal  Urgency = "normal"
)

// Item is a task as the board sees it.
type Item struct {
	ID          uint       `json:"id"`
	SeriesID    *uint      `json:"seriesId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	SpaceID     *uint      `json:"spaceId,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// View is an item annotated for rendering.
type View struct {
	Item
	Urgency Urgency `json:"urgency"`
}
