package model

import "time"

// Event is a company calendar entry, optionally generated from a series.
type Event struct {
	ID          uint       `gorm:"primaryKey"`
	SeriesID    *uint      `gorm:"uniqueIndex:idx_event_series_anchor"`
	AnchorDate  *time.Time `gorm:"uniqueIndex:idx_event_series_anchor"`
	SpaceID     *uint      `gorm:"index"`
	Title       string
	Description string
	Attendees   string
	StartsAt    time.Time `gorm:"index"`
	EndsAt      time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
