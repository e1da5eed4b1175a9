package models

import "strings"

// Role is the platform role of a user.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleClient     Role = "CLIENT"
	RoleFreelancer Role = "FREELANCER"
	// RoleSystem is never stored; it identifies engine-internal side effects.
	RoleSystem Role = "SYSTEM"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleFreelancer:
		return true
	}
	return false
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

type ProjectStatus string

const (
	ProjectOpen       ProjectStatus = "OPEN"
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectClosed     ProjectStatus = "CLOSED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectOpen, ProjectInProgress, ProjectClosed:
		return true
	}
	return false
}

func ParseProjectStatus(s string) (ProjectStatus, bool) {
	st := ProjectStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalAccepted ProposalStatus = "ACCEPTED"
	ProposalRejected ProposalStatus = "REJECTED"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalPending, ProposalAccepted, ProposalRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalAccepted || s == ProposalRejected
}

func ParseProposalStatus(s string) (ProposalStatus, bool) {
	st := ProposalStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

// ContractStatus is shared by contracts and milestones.
type ContractStatus string

const (
	ContractPending   ContractStatus = "PENDING"
	ContractCompleted ContractStatus = "COMPLETED"
)

func (s ContractStatus) Valid() bool {
	return s == ContractPending || s == ContractCompleted
}

func ParseContractStatus(s string) (ContractStatus, bool) {
	st := ContractStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

type MilestoneStatus = ContractStatus

const (
	MilestonePending   = ContractPending
	MilestoneCompleted = ContractCompleted
)
