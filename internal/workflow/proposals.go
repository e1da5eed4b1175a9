package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/pkg/logger"
)

type SubmitProposalInput struct {
	BidAmount     float64 `json:"bid_amount"`
	ProposalText  string  `json:"proposal_text"`
	EstimatedDays int     `json:"estimated_days"`
}

func (in *SubmitProposalInput) normalize() error {
	in.ProposalText = strings.TrimSpace(in.ProposalText)
	if in.BidAmount <= 0 {
		return apperr.Validation("bid_amount", "bid amount must be greater than 0")
	}
	if in.EstimatedDays < 0 {
		return apperr.Validation("estimated_days", "estimated days must not be negative")
	}
	return nil
}

const duplicateProposalMsg = "a proposal for this project has already been submitted"

// SubmitProposal places a bid on an open project. A freelancer may bid on a
// project only once.
func (e *Engine) SubmitProposal(ctx context.Context, actor authz.Actor, projectID uint, in SubmitProposalInput) (_ *models.Proposal, err error) {
	defer e.observe("submit_proposal", &err)()

	proposal := &models.Proposal{
		ProjectID:    projectID,
		FreelancerID: actor.ID,
		Status:       models.ProposalPending,
	}
	c := newChange(actor)
	err = e.withProjectLock(ctx, projectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			if err := e.authz.WithStore(tx).Authorize(ctx, actor, authz.ProposalCreate, projectID); err != nil {
				return err
			}
			if err := in.normalize(); err != nil {
				return err
			}
			n, err := tx.Count(ctx, &models.Proposal{},
				store.Where("project_id = ?", projectID).And("freelancer_id = ?", actor.ID))
			if err != nil {
				return err
			}
			if n > 0 {
				return apperr.Validation("project_id", duplicateProposalMsg)
			}

			proposal.BidAmount = in.BidAmount
			proposal.ProposalText = in.ProposalText
			proposal.EstimatedDays = in.EstimatedDays
			if err := tx.Create(ctx, proposal); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return apperr.Validation("project_id", duplicateProposalMsg)
				}
				return err
			}
			c.record("proposal", proposal.ID, projectID, "proposal.submit", events.ProposalSubmitted, "", string(proposal.Status), "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	return proposal, nil
}

func (e *Engine) GetProposal(ctx context.Context, actor authz.Actor, id uint) (_ *models.Proposal, err error) {
	defer e.observe("get_proposal", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return load[models.Proposal](ctx, e.store, "proposal", id)
}

type ProposalFilter struct {
	ProjectID    uint   `form:"project_id"`
	FreelancerID uint   `form:"freelancer_id"`
	ClientID     uint   `form:"client_id"`
	Status       string `form:"status"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

func (e *Engine) ListProposals(ctx context.Context, actor authz.Actor, f ProposalFilter) (_ *Page[models.Proposal], err error) {
	defer e.observe("list_proposals", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	q := store.Where("1 = 1")
	if f.ProjectID != 0 {
		q = q.And("project_id = ?", f.ProjectID)
	}
	if f.FreelancerID != 0 {
		q = q.And("freelancer_id = ?", f.FreelancerID)
	}
	if f.ClientID != 0 {
		q = q.And("project_id IN (SELECT id FROM projects WHERE client_id = ?)", f.ClientID)
	}
	if f.Status != "" {
		status, ok := models.ParseProposalStatus(f.Status)
		if !ok {
			return nil, apperr.Validation("status", "unknown proposal status")
		}
		q = q.And("status = ?", status)
	}
	return list[models.Proposal](ctx, e.store, q, f.Page, f.PageSize)
}

// AcceptResult is everything an acceptance changed.
type AcceptResult struct {
	Proposal         *models.Proposal `json:"proposal"`
	Project          *models.Project  `json:"project"`
	Contract         *models.Contract `json:"contract"`
	RejectedSiblings []uint           `json:"rejected_siblings"`
}

// AcceptInput carries the optional description of the contract an
// acceptance creates. Blank means a description derived from the project.
type AcceptInput struct {
	ContractDescription string `json:"contract_description"`
}

// AcceptProposal accepts with the default contract description.
func (e *Engine) AcceptProposal(ctx context.Context, actor authz.Actor, id uint) (*AcceptResult, error) {
	return e.AcceptProposalWith(ctx, actor, id, AcceptInput{})
}

// AcceptProposalWith moves a pending proposal to ACCEPTED, the project to
// IN_PROGRESS and creates the contract, in one transaction under the
// project lock. A project can have only one accepted proposal.
func (e *Engine) AcceptProposalWith(ctx context.Context, actor authz.Actor, id uint, in AcceptInput) (_ *AcceptResult, err error) {
	defer e.observe("accept_proposal", &err)()

	head, err := load[models.Proposal](ctx, e.store, "proposal", id)
	if err != nil {
		return nil, err
	}

	result := &AcceptResult{RejectedSiblings: []uint{}}
	c := newChange(actor)
	err = e.withProjectLock(ctx, head.ProjectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			az := e.authz.WithStore(tx)
			if err := az.Authorize(ctx, actor, authz.ProposalStatus, id); err != nil {
				return err
			}

			proposal, err := load[models.Proposal](ctx, tx, "proposal", id)
			if err != nil {
				return err
			}
			if proposal.Status != models.ProposalPending {
				return apperr.Validation("status", fmt.Sprintf("proposal is already %s", proposal.Status))
			}

			accepted, err := tx.Count(ctx, &models.Proposal{},
				store.Where("project_id = ?", proposal.ProjectID).And("status = ?", models.ProposalAccepted))
			if err != nil {
				return err
			}
			if accepted > 0 {
				return apperr.Conflict("project %d already has an accepted proposal", proposal.ProjectID)
			}

			if err := e.transitionProposal(ctx, tx, proposal, models.ProposalAccepted); err != nil {
				return err
			}
			c.record("proposal", proposal.ID, proposal.ProjectID, "proposal.accept", events.ProposalAccepted,
				string(models.ProposalPending), string(models.ProposalAccepted), "")

			var project models.Project
			if err := tx.Get(ctx, &project, proposal.ProjectID); err != nil {
				return notFound(err, "project", proposal.ProjectID)
			}
			from := project.Status
			if from != models.ProjectInProgress {
				if err := tx.Update(ctx, &project, project.ID, map[string]interface{}{"status": models.ProjectInProgress}); err != nil {
					return err
				}
				c.record("project", project.ID, project.ID, "project.status", events.ProjectStatusChanged,
					string(from), string(models.ProjectInProgress), fmt.Sprintf("proposal %d accepted", proposal.ID))
			}

			system := authz.System()
			if err := az.Authorize(ctx, system, authz.ContractCreate, proposal.ID); err != nil {
				return err
			}
			description := strings.TrimSpace(in.ContractDescription)
			if description == "" {
				description = fmt.Sprintf("Contract for %q", project.Title)
			}
			contract := &models.Contract{
				ProposalID:  proposal.ID,
				Description: description,
				Status:      models.ContractPending,
			}
			if err := tx.Create(ctx, contract); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return apperr.Conflict("proposal %d already has a contract", proposal.ID)
				}
				return err
			}
			c.recordAs(models.RoleSystem, "contract", contract.ID, project.ID, "contract.create", events.ContractCreated,
				"", string(contract.Status), fmt.Sprintf("created on acceptance of proposal %d", proposal.ID))

			if e.rejectSiblings {
				rejected, err := e.rejectSiblingProposals(ctx, tx, c, proposal)
				if err != nil {
					return err
				}
				result.RejectedSiblings = rejected
			}

			result.Proposal = proposal
			result.Project = &project
			result.Contract = contract
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return nil, err
	}

	e.commit(ctx, c)
	logger.Info().
		Uint("proposal_id", id).
		Uint("project_id", result.Project.ID).
		Uint("contract_id", result.Contract.ID).
		Int("rejected_siblings", len(result.RejectedSiblings)).
		Msg("[Workflow] Proposal accepted")
	return result, nil
}

func (e *Engine) rejectSiblingProposals(ctx context.Context, tx *store.Store, c *change, accepted *models.Proposal) ([]uint, error) {
	var siblings []models.Proposal
	err := tx.Find(ctx, &siblings, store.Where("project_id = ?", accepted.ProjectID).
		And("status = ?", models.ProposalPending).
		And("id <> ?", accepted.ID).
		OrderBy("id ASC"))
	if err != nil {
		return nil, err
	}

	rejected := make([]uint, 0, len(siblings))
	for i := range siblings {
		sibling := &siblings[i]
		if err := e.transitionProposal(ctx, tx, sibling, models.ProposalRejected); err != nil {
			return nil, err
		}
		c.recordAs(models.RoleSystem, "proposal", sibling.ID, sibling.ProjectID, "proposal.reject", events.ProposalRejected,
			string(models.ProposalPending), string(models.ProposalRejected), fmt.Sprintf("proposal %d accepted", accepted.ID))
		rejected = append(rejected, sibling.ID)
	}
	return rejected, nil
}

// transitionProposal moves a PENDING proposal to status with a conditional
// update, so a concurrent transition of the same proposal loses instead of
// overwriting.
func (e *Engine) transitionProposal(ctx context.Context, tx *store.Store, p *models.Proposal, status models.ProposalStatus) error {
	ok, err := tx.UpdateWhere(ctx, &models.Proposal{}, p.ID,
		store.Where("status = ?", models.ProposalPending),
		map[string]interface{}{"status": status})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("proposal %d was changed concurrently, please retry", p.ID)
	}
	return tx.Get(ctx, p, p.ID)
}

// RejectProposal moves a pending proposal to REJECTED. It never touches the
// project or any contract.
func (e *Engine) RejectProposal(ctx context.Context, actor authz.Actor, id uint) (_ *models.Proposal, err error) {
	defer e.observe("reject_proposal", &err)()

	head, err := load[models.Proposal](ctx, e.store, "proposal", id)
	if err != nil {
		return nil, err
	}

	var proposal *models.Proposal
	c := newChange(actor)
	err = e.withProjectLock(ctx, head.ProjectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			if err := e.authz.WithStore(tx).Authorize(ctx, actor, authz.ProposalStatus, id); err != nil {
				return err
			}
			p, err := load[models.Proposal](ctx, tx, "proposal", id)
			if err != nil {
				return err
			}
			if p.Status != models.ProposalPending {
				return apperr.Validation("status", fmt.Sprintf("proposal is already %s", p.Status))
			}
			if err := e.transitionProposal(ctx, tx, p, models.ProposalRejected); err != nil {
				return err
			}
			proposal = p
			c.record("proposal", p.ID, p.ProjectID, "proposal.reject", events.ProposalRejected,
				string(models.ProposalPending), string(models.ProposalRejected), "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	return proposal, nil
}

// ChangeProposalStatus dispatches a requested status to Accept or Reject.
// The returned proposal reflects the committed state.
func (e *Engine) ChangeProposalStatus(ctx context.Context, actor authz.Actor, id uint, status models.ProposalStatus) (*models.Proposal, error) {
	target, ok := models.ParseProposalStatus(string(status))
	if !ok {
		return nil, apperr.Validation("status", "status must be one of PENDING, ACCEPTED, REJECTED")
	}

	switch target {
	case models.ProposalAccepted:
		res, err := e.AcceptProposal(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return res.Proposal, nil
	case models.ProposalRejected:
		return e.RejectProposal(ctx, actor, id)
	}

	if err := e.authz.Authorize(ctx, actor, authz.ProposalStatus, id); err != nil {
		return nil, err
	}
	p, err := e.GetProposal(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, apperr.Validation("status", fmt.Sprintf("proposal is already %s", p.Status))
	}
	return p, nil
}
