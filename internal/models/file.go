package models

import "time"

// File holds deliverable metadata; the bytes live in blob storage under StorageKey.
type File struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"index;not null" json:"project_id"`
	MilestoneID *uint     `gorm:"index" json:"milestone_id"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `gorm:"size:300;not null" json:"-"`
	UploadedBy  uint      `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (File) TableName() string { return "files" }
