package models

import "time"

// Proposal is a freelancer's bid on a project. One per (project, freelancer).
type Proposal struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ProjectID     uint           `gorm:"uniqueIndex:idx_proposal_project_freelancer;not null" json:"project_id"`
	FreelancerID  uint           `gorm:"uniqueIndex:idx_proposal_project_freelancer;index;not null" json:"freelancer_id"`
	BidAmount     float64        `gorm:"not null" json:"bid_amount"`
	ProposalText  string         `gorm:"type:text" json:"proposal_text"`
	EstimatedDays int            `gorm:"default:0" json:"estimated_days"`
	Status        ProposalStatus `gorm:"size:20;index;default:PENDING" json:"status"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Proposal) TableName() string { return "proposals" }
