package models

import "time"

// AuditLog records one state-changing workflow operation
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"size:30;index" json:"entity_type"` // project, proposal, contract, milestone, file, user
	EntityID   uint      `gorm:"index" json:"entity_id"`
	Action     string    `gorm:"size:50;index" json:"action"`
	FromStatus string    `gorm:"size:20" json:"from_status"`
	ToStatus   string    `gorm:"size:20" json:"to_status"`
	ActorID    uint      `gorm:"index" json:"actor_id"`
	ActorRole  Role      `gorm:"size:20" json:"actor_role"`
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
