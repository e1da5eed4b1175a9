package workflow

import (
	"context"

	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
)

// Dashboard counts the entities an actor takes part in, by status.
type Dashboard struct {
	Projects   map[string]int64 `json:"projects"`
	Proposals  map[string]int64 `json:"proposals"`
	Contracts  map[string]int64 `json:"contracts"`
	Milestones map[string]int64 `json:"milestones"`
	Files      int64            `json:"files"`
}

type dashboardScope struct {
	projects, proposals, contracts, milestones, files store.Query
}

const (
	clientProposals    = "SELECT proposals.id FROM proposals JOIN projects ON projects.id = proposals.project_id WHERE projects.client_id = ?"
	freelancerProjects = "SELECT project_id FROM proposals WHERE freelancer_id = ? AND status = 'ACCEPTED'"
)

// scopeFor limits a client to its own projects and a freelancer to its own
// proposals and the projects it was awarded. Admins see everything.
func scopeFor(actor authz.Actor) dashboardScope {
	all := store.Where("1 = 1")
	switch actor.Role {
	case models.RoleClient:
		return dashboardScope{
			projects:   store.Where("client_id = ?", actor.ID),
			proposals:  store.Where("project_id IN (SELECT id FROM projects WHERE client_id = ?)", actor.ID),
			contracts:  store.Where("proposal_id IN ("+clientProposals+")", actor.ID),
			milestones: store.Where("contract_id IN (SELECT id FROM contracts WHERE proposal_id IN ("+clientProposals+"))", actor.ID),
			files:      store.Where("project_id IN (SELECT id FROM projects WHERE client_id = ?)", actor.ID),
		}
	case models.RoleFreelancer:
		return dashboardScope{
			projects:   store.Where("id IN ("+freelancerProjects+")", actor.ID),
			proposals:  store.Where("freelancer_id = ?", actor.ID),
			contracts:  store.Where("proposal_id IN (SELECT id FROM proposals WHERE freelancer_id = ?)", actor.ID),
			milestones: store.Where("contract_id IN (SELECT id FROM contracts WHERE proposal_id IN (SELECT id FROM proposals WHERE freelancer_id = ?))", actor.ID),
			files:      store.Where("project_id IN ("+freelancerProjects+")", actor.ID),
		}
	}
	return dashboardScope{projects: all, proposals: all, contracts: all, milestones: all, files: all}
}

func (e *Engine) Dashboard(ctx context.Context, actor authz.Actor) (_ *Dashboard, err error) {
	defer e.observe("dashboard", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	scope := scopeFor(actor)

	d := &Dashboard{}
	if d.Projects, err = e.store.CountBy(ctx, &models.Project{}, scope.projects, "status"); err != nil {
		return nil, err
	}
	if d.Proposals, err = e.store.CountBy(ctx, &models.Proposal{}, scope.proposals, "status"); err != nil {
		return nil, err
	}
	if d.Contracts, err = e.store.CountBy(ctx, &models.Contract{}, scope.contracts, "status"); err != nil {
		return nil, err
	}
	if d.Milestones, err = e.store.CountBy(ctx, &models.Milestone{}, scope.milestones, "status"); err != nil {
		return nil, err
	}
	if d.Files, err = e.store.Count(ctx, &models.File{}, scope.files); err != nil {
		return nil, err
	}
	return d, nil
}
