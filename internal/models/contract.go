package models

import "time"

// Contract is created from an accepted proposal
type Contract struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProposalID  uint           `gorm:"uniqueIndex;not null" json:"proposal_id"`
	Description string         `gorm:"type:text" json:"description"`
	Status      ContractStatus `gorm:"size:20;index;default:PENDING" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Contract) TableName() string { return "contracts" }

// Milestone is a unit of work under a contract, optionally carrying one file.
type Milestone struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ContractID  uint            `gorm:"index;not null" json:"contract_id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Status      MilestoneStatus `gorm:"size:20;default:PENDING" json:"status"`
	FileID      *uint           `json:"file_id"`
	FileName    *string         `gorm:"size:255" json:"file_name"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Milestone) TableName() string { return "milestones" }
