package model

import "time"

// Series is a recurring template for tasks or calendar events. The rule is
// stored flattened; DaysOfWeek holds a comma separated weekday list.
type Series struct {
	ID                  uint   `gorm:"primaryKey"`
	Kind                string `gorm:"index"`
	Title               string
	Description         string
	Assignee            string
	Attendees           string
	Priority            string
	SpaceID             *uint `gorm:"index"`
	IsRecurring         bool  `gorm:"default:true"`
	Pattern             string
	Interval            int `gorm:"default:1"`
	DaysOfWeek          string
	DayOfMonth          *int
	EndDate             *time.Time
	ScheduleFrom        string
	StartsAt            time.Time
	DurationMinutes     int
	LastGeneratedAnchor *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
