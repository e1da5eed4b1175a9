package models

import (
	"time"
)

// Project is a job posted by a client
type Project struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	ClientID    uint          `gorm:"index;not null" json:"client_id"`
	Title       string        `gorm:"size:200;not null" json:"title"`
	Description string        `gorm:"type:text;not null" json:"description"`
	MinBudget   float64       `gorm:"not null" json:"min_budget"`
	MaxBudget   float64       `gorm:"not null" json:"max_budget"`
	Deadline    time.Time     `gorm:"not null" json:"deadline"`
	Skills      []string      `gorm:"type:text;serializer:json" json:"skills"` // stored as a JSON array
	Status      ProjectStatus `gorm:"size:20;index;default:OPEN" json:"status"`
	CreatedAt   time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
