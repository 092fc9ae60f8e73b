package model

import "time"

// Task is a single card on the board. Tasks generated from a series carry the
// series id and the anchor they were generated for; the pair is unique.
type Task struct {
	ID          uint       `gorm:"primaryKey"`
	SeriesID    *uint      `gorm:"uniqueIndex:idx_task_series_anchor"`
	AnchorDate  *time.Time `gorm:"uniqueIndex:idx_task_series_anchor"`
	SpaceID     *uint      `gorm:"index"`
	Title       string
	Description string
	Status      string `gorm:"index;default:todo"`
	Priority    string `gorm:"default:normal"`
	Assignee    string
	DueDate     *time.Time `gorm:"index"`
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
