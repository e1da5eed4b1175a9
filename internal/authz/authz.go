// Package authz holds the single role/ownership policy table for workflow actions.
package authz

import (
	"context"
	"errors"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/config"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
)

// Actor is an authenticated caller.
type Actor struct {
	ID   uint
	Role models.Role
}

// System is the engine acting on its own behalf, e.g. creating the contract
// when a proposal is accepted.
func System() Actor {
	return Actor{Role: models.RoleSystem}
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

type Action string

const (
	ProjectCreate   Action = "project:create"
	ProjectStatus   Action = "project:status"
	ProposalCreate  Action = "proposal:create"
	ProposalStatus  Action = "proposal:status"
	ContractCreate  Action = "contract:create"
	ContractUpdate  Action = "contract:update"
	ContractDelete  Action = "contract:delete"
	MilestoneManage Action = "milestone:manage"
	FileManage      Action = "file:manage"
	UsersManage     Action = "users:manage"
)

// rule lists the roles that may attempt an action and the ownership check,
// if any, that must also pass. resourceID is a project id for project and
// file actions, a proposal id for proposal:status and contract:create, and a
// contract id for contract and milestone actions.
type rule struct {
	roles []models.Role
	check func(a *Authorizer, ctx context.Context, actor Actor, resourceID uint) error
}

var (
	admin      = models.RoleAdmin
	client     = models.RoleClient
	freelancer = models.RoleFreelancer
	system     = models.RoleSystem
)

var policy = map[Action]rule{
	ProjectCreate:   {roles: []models.Role{client, admin}},
	ProjectStatus:   {roles: []models.Role{client, admin}, check: (*Authorizer).checkProjectOwner},
	ProposalCreate:  {roles: []models.Role{freelancer, admin}, check: (*Authorizer).checkProjectOpen},
	ProposalStatus:  {roles: []models.Role{client, admin}, check: (*Authorizer).checkProposalOwner},
	ContractCreate:  {roles: []models.Role{freelancer, admin, system}, check: (*Authorizer).checkProposalAccepted},
	ContractUpdate:  {roles: []models.Role{client, freelancer, admin}, check: (*Authorizer).checkContractParty},
	MilestoneManage: {roles: []models.Role{client, freelancer, admin}, check: (*Authorizer).checkContractParty},
	FileManage:      {roles: []models.Role{client, freelancer, admin}, check: (*Authorizer).checkProjectParty},
	UsersManage:     {roles: []models.Role{admin}},
}

// Authorizer evaluates the policy table, loading resources through a Store.
type Authorizer struct {
	store                *store.Store
	contractDeletePolicy string
}

type Option func(*Authorizer)

// WithContractDeletePolicy selects who may delete a contract:
// config.ContractDeleteParties, config.ContractDeleteAdmin or config.ContractDeleteAny.
func WithContractDeletePolicy(p string) Option {
	return func(a *Authorizer) { a.contractDeletePolicy = p }
}

func New(s *store.Store, opts ...Option) *Authorizer {
	a := &Authorizer{store: s, contractDeletePolicy: config.ContractDeleteParties}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithStore returns a copy bound to s, typically a transaction.
func (a *Authorizer) WithStore(s *store.Store) *Authorizer {
	c := *a
	c.store = s
	return &c
}

func (a *Authorizer) ContractDeletePolicy() string {
	return a.contractDeletePolicy
}

// Authorize returns nil on ALLOW, an apperr Forbidden on DENY and an apperr
// NotFound when the resource the decision depends on does not exist.
func (a *Authorizer) Authorize(ctx context.Context, actor Actor, action Action, resourceID uint) error {
	r, ok := a.ruleFor(action)
	if !ok {
		return apperr.Forbidden("unknown action %s", action)
	}
	if !roleIn(actor.Role, r.roles) {
		return apperr.Forbidden("role %s may not perform %s", roleLabel(actor.Role), action)
	}
	if r.check == nil {
		return nil
	}
	return r.check(a, ctx, actor, resourceID)
}

func (a *Authorizer) ruleFor(action Action) (rule, bool) {
	if action != ContractDelete {
		r, ok := policy[action]
		return r, ok
	}
	switch a.contractDeletePolicy {
	case config.ContractDeleteAdmin:
		return rule{roles: []models.Role{admin}}, true
	case config.ContractDeleteAny:
		return rule{roles: []models.Role{client, freelancer, admin}, check: (*Authorizer).checkContractExists}, true
	default:
		return rule{roles: []models.Role{client, freelancer, admin}, check: (*Authorizer).checkContractParty}, true
	}
}

func roleIn(role models.Role, roles []models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func roleLabel(r models.Role) string {
	if r == "" {
		return "anonymous"
	}
	return string(r)
}

func (a *Authorizer) loadProject(ctx context.Context, id uint) (*models.Project, error) {
	p, err := store.Load[models.Project](ctx, a.store, id)
	if err != nil {
		return nil, lookupErr(err, "project", id)
	}
	return p, nil
}

func (a *Authorizer) loadProposal(ctx context.Context, id uint) (*models.Proposal, error) {
	p, err := store.Load[models.Proposal](ctx, a.store, id)
	if err != nil {
		return nil, lookupErr(err, "proposal", id)
	}
	return p, nil
}

func (a *Authorizer) loadContract(ctx context.Context, id uint) (*models.Contract, error) {
	c, err := store.Load[models.Contract](ctx, a.store, id)
	if err != nil {
		return nil, lookupErr(err, "contract", id)
	}
	return c, nil
}

func lookupErr(err error, entity string, id uint) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s %d not found", entity, id)
	}
	return apperr.Conflict("failed to load %s %d", entity, id).Wrap(err)
}

func (a *Authorizer) checkProjectOwner(ctx context.Context, actor Actor, projectID uint) error {
	p, err := a.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if actor.IsAdmin() || p.ClientID == actor.ID {
		return nil
	}
	return apperr.Forbidden("only the owning client may change project %d", projectID)
}

func (a *Authorizer) checkProjectOpen(ctx context.Context, _ Actor, projectID uint) error {
	p, err := a.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Status != models.ProjectOpen {
		return apperr.Forbidden("project %d is not open for proposals", projectID)
	}
	return nil
}

func (a *Authorizer) checkProposalOwner(ctx context.Context, actor Actor, proposalID uint) error {
	prop, err := a.loadProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	return a.checkProjectOwner(ctx, actor, prop.ProjectID)
}

func (a *Authorizer) checkProposalAccepted(ctx context.Context, actor Actor, proposalID uint) error {
	prop, err := a.loadProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if actor.Role == models.RoleFreelancer && prop.FreelancerID != actor.ID {
		return apperr.Forbidden("proposal %d belongs to another freelancer", proposalID)
	}
	if prop.Status != models.ProposalAccepted {
		return apperr.Forbidden("proposal %d is not accepted", proposalID)
	}
	return nil
}

func (a *Authorizer) checkContractExists(ctx context.Context, _ Actor, contractID uint) error {
	_, err := a.loadContract(ctx, contractID)
	return err
}

func (a *Authorizer) checkContractParty(ctx context.Context, actor Actor, contractID uint) error {
	c, err := a.loadContract(ctx, contractID)
	if err != nil {
		return err
	}
	if actor.IsAdmin() {
		return nil
	}
	prop, err := a.loadProposal(ctx, c.ProposalID)
	if err != nil {
		return err
	}
	if actor.Role == models.RoleFreelancer && prop.FreelancerID == actor.ID {
		return nil
	}
	if actor.Role == models.RoleClient {
		p, err := a.loadProject(ctx, prop.ProjectID)
		if err != nil {
			return err
		}
		if p.ClientID == actor.ID {
			return nil
		}
	}
	return apperr.Forbidden("not a party to contract %d", contractID)
}

func (a *Authorizer) checkProjectParty(ctx context.Context, actor Actor, projectID uint) error {
	p, err := a.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if actor.IsAdmin() {
		return nil
	}
	switch actor.Role {
	case models.RoleClient:
		if p.ClientID == actor.ID {
			return nil
		}
	case models.RoleFreelancer:
		n, err := a.store.Count(ctx, &models.Proposal{},
			store.Where("project_id = ?", projectID).
				And("freelancer_id = ?", actor.ID).
				And("status = ?", models.ProposalAccepted))
		if err != nil {
			return apperr.Conflict("failed to check proposals of project %d", projectID).Wrap(err)
		}
		if n > 0 {
			return nil
		}
	}
	return apperr.Forbidden("not a party to project %d", projectID)
}
