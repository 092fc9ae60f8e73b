package model

import "time"

// Space groups tasks and series by area (sales, support, finance, etc.).
type Space struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:SpaceID"`
}
