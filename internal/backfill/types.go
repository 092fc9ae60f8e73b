package backfill

import (
	"context"
	"errors"
	"time"

	"ops-dashboard/internal/recurrence"
)

var (
	// ErrDuplicateOccurrence is returned by a Store when (series, anchor)
	// already exists. Backfill treats it as "already created".
	ErrDuplicateOccurrence = errors.New("occurrence already exists for anchor")
	// ErrPersistenceUnavailable wraps store failures reported in results.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrNotRecurring           = errors.New("series is not recurring")
	ErrSeriesNotFound         = errors.New("series not found")
)

type Kind string

const (
	KindTask  Kind = "task"
	KindEvent Kind = "event"
)

// Series is the recurring template an occurrence is generated from.
type Series struct {
	ID          uint
	Kind        Kind
	Title       string
	Description string
	Assignee    string
	Attendees   string
	Priority    string
	SpaceID     *uint
	Rule        recurrence.Rule
	IsRecurring bool
	// Start is the due date (tasks) or start time (events) of the first occurrence.
	Start               time.Time
	Duration            time.Duration
	LastGeneratedAnchor *time.Time
}

// Occurrence is what the engine needs to know about a generated item.
type Occurrence struct {
	ID          uint
	SeriesID    uint
	Anchor      time.Time
	Completed   bool
	CompletedAt *time.Time
}

// Template carries everything a store needs to create one occurrence.
type Template struct {
	SeriesID    uint
	Kind        Kind
	Anchor      time.Time
	Due         time.Time
	End         time.Time
	Title       string
	Description string
	Assignee    string
	Attendees   string
	Priority    string
	SpaceID     *uint
}

// Store is the persistence collaborator the engine reconciles against.
type Store interface {
	FindSeries(ctx context.Context, seriesID uint) (*Series, error)
	FindOccurrences(ctx context.Context, seriesID uint) ([]Occurrence, error)
	ExistsForAnchor(ctx context.Context, seriesID uint, anchor time.Time) (bool, error)
	CreateOccurrence(ctx context.Context, tpl Template) (Occurrence, error)
	UpdateSeries(ctx context.Context, seriesID uint, lastGeneratedAnchor time.Time) error
}

// DateFailure reports a date that could not be created in this run.
type DateFailure struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// Result is the outcome of one backfill run. Empty Created and Failed means
// there was nothing to do.
type Result struct {
	SeriesID uint          `json:"seriesId"`
	Created  []time.Time   `json:"created"`
	Failed   []DateFailure `json:"failed"`
}

func (r Result) Partial() bool { return len(r.Failed) > 0 }
