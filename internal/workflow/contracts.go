package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/pkg/logger"
)

type CreateContractInput struct {
	ProposalID  uint   `json:"proposal_id" binding:"required"`
	Description string `json:"description"`
}

const duplicateContractMsg = "a contract already exists for this proposal"

// CreateContract creates the contract of an accepted proposal by hand, for
// proposals accepted before contracts were created automatically.
func (e *Engine) CreateContract(ctx context.Context, actor authz.Actor, in CreateContractInput) (_ *models.Contract, err error) {
	defer e.observe("create_contract", &err)()

	proposal, err := load[models.Proposal](ctx, e.store, "proposal", in.ProposalID)
	if err != nil {
		return nil, err
	}

	contract := &models.Contract{
		ProposalID:  in.ProposalID,
		Description: strings.TrimSpace(in.Description),
		Status:      models.ContractPending,
	}
	c := newChange(actor)
	err = e.withProjectLock(ctx, proposal.ProjectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			if err := e.authz.WithStore(tx).Authorize(ctx, actor, authz.ContractCreate, in.ProposalID); err != nil {
				return err
			}
			n, err := tx.Count(ctx, &models.Contract{}, store.Where("proposal_id = ?", in.ProposalID))
			if err != nil {
				return err
			}
			if n > 0 {
				return apperr.Validation("proposal_id", duplicateContractMsg)
			}
			if err := tx.Create(ctx, contract); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return apperr.Validation("proposal_id", duplicateContractMsg)
				}
				return err
			}
			c.record("contract", contract.ID, proposal.ProjectID, "contract.create", events.ContractCreated, "", string(contract.Status), "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	return contract, nil
}

func (e *Engine) GetContract(ctx context.Context, actor authz.Actor, id uint) (_ *models.Contract, err error) {
	defer e.observe("get_contract", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return load[models.Contract](ctx, e.store, "contract", id)
}

type ContractFilter struct {
	ClientID     uint   `form:"client_id"`
	FreelancerID uint   `form:"freelancer_id"`
	ProjectID    uint   `form:"project_id"`
	ProposalID   uint   `form:"proposal_id"`
	Status       string `form:"status"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

func (e *Engine) ListContracts(ctx context.Context, actor authz.Actor, f ContractFilter) (_ *Page[models.Contract], err error) {
	defer e.observe("list_contracts", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	q := store.Where("1 = 1")
	if f.ProposalID != 0 {
		q = q.And("proposal_id = ?", f.ProposalID)
	}
	if f.FreelancerID != 0 {
		q = q.And("proposal_id IN (SELECT id FROM proposals WHERE freelancer_id = ?)", f.FreelancerID)
	}
	if f.ProjectID != 0 {
		q = q.And("proposal_id IN (SELECT id FROM proposals WHERE project_id = ?)", f.ProjectID)
	}
	if f.ClientID != 0 {
		q = q.And("proposal_id IN (SELECT proposals.id FROM proposals JOIN projects ON projects.id = proposals.project_id WHERE projects.client_id = ?)", f.ClientID)
	}
	if f.Status != "" {
		status, ok := models.ParseContractStatus(f.Status)
		if !ok {
			return nil, apperr.Validation("status", "unknown contract status")
		}
		q = q.And("status = ?", status)
	}
	return list[models.Contract](ctx, e.store, q, f.Page, f.PageSize)
}

// UpdateContractInput leaves nil fields unchanged.
type UpdateContractInput struct {
	Description *string                `json:"description"`
	Status      *models.ContractStatus `json:"status"`
}

func (e *Engine) UpdateContract(ctx context.Context, actor authz.Actor, id uint, in UpdateContractInput) (_ *models.Contract, err error) {
	defer e.observe("update_contract", &err)()

	if err := e.authz.Authorize(ctx, actor, authz.ContractUpdate, id); err != nil {
		return nil, err
	}
	patch, err := contractPatch(in.Description, in.Status)
	if err != nil {
		return nil, err
	}

	var contract models.Contract
	c := newChange(actor)
	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Get(ctx, &contract, id); err != nil {
			return notFound(err, "contract", id)
		}
		from := contract.Status
		if len(patch) == 0 {
			return nil
		}
		if err := tx.Update(ctx, &contract, id, patch); err != nil {
			return err
		}
		projectID, err := e.projectOfContract(ctx, tx, &contract)
		if err != nil {
			return err
		}
		c.record("contract", id, projectID, "contract.update", events.ContractUpdated, string(from), string(contract.Status), "")
		return c.write(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	return &contract, nil
}

// contractPatch builds the column patch shared by contracts and milestones.
func contractPatch(description *string, status *models.ContractStatus) (map[string]interface{}, error) {
	patch := map[string]interface{}{}
	if description != nil {
		d := strings.TrimSpace(*description)
		if d == "" {
			return nil, apperr.Validation("description", "description must not be empty")
		}
		patch["description"] = d
	}
	if status != nil {
		st, ok := models.ParseContractStatus(string(*status))
		if !ok {
			return nil, apperr.Validation("status", "status must be one of PENDING, COMPLETED")
		}
		patch["status"] = st
	}
	return patch, nil
}

func (e *Engine) projectOfContract(ctx context.Context, tx *store.Store, contract *models.Contract) (uint, error) {
	proposal, err := load[models.Proposal](ctx, tx, "proposal", contract.ProposalID)
	if err != nil {
		return 0, err
	}
	return proposal.ProjectID, nil
}

// contractProject resolves the project a contract belongs to, so callers can
// take the project lock before their transaction.
func (e *Engine) contractProject(ctx context.Context, contractID uint) (uint, error) {
	contract, err := load[models.Contract](ctx, e.store, "contract", contractID)
	if err != nil {
		return 0, err
	}
	return e.projectOfContract(ctx, e.store, contract)
}

// DeleteContract removes a contract with its milestones and their files.
// The proposal it came from keeps its status.
func (e *Engine) DeleteContract(ctx context.Context, actor authz.Actor, id uint) (err error) {
	defer e.observe("delete_contract", &err)()

	if err := e.authz.Authorize(ctx, actor, authz.ContractDelete, id); err != nil {
		return err
	}
	projectID, err := e.contractProject(ctx, id)
	if err != nil {
		return err
	}

	var keys []string
	c := newChange(actor)
	err = e.withProjectLock(ctx, projectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			contract, err := load[models.Contract](ctx, tx, "contract", id)
			if err != nil {
				return err
			}

			var milestones []models.Milestone
			if err := tx.Find(ctx, &milestones, store.Where("contract_id = ?", id)); err != nil {
				return err
			}
			if len(milestones) > 0 {
				ids := make([]uint, len(milestones))
				for i, m := range milestones {
					ids[i] = m.ID
				}
				var files []models.File
				if err := tx.Find(ctx, &files, store.Where("milestone_id IN ?", ids)); err != nil {
					return err
				}
				for _, f := range files {
					if err := tx.Delete(ctx, &models.File{}, f.ID); err != nil {
						return err
					}
					keys = append(keys, f.StorageKey)
					c.record("file", f.ID, projectID, "file.delete", events.FileDeleted, "", "", "contract deleted")
				}
				if _, err := tx.DeleteWhere(ctx, &models.Milestone{}, store.Where("contract_id = ?", id)); err != nil {
					return err
				}
				for _, m := range milestones {
					c.record("milestone", m.ID, projectID, "milestone.delete", events.MilestoneDeleted, string(m.Status), "", "contract deleted")
				}
			}

			if err := tx.Delete(ctx, &models.Contract{}, id); err != nil {
				return notFound(err, "contract", id)
			}
			c.record("contract", id, projectID, "contract.delete", events.ContractDeleted, string(contract.Status), "", "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return err
	}

	e.commit(ctx, c)
	e.deleteBlobs(ctx, keys...)
	logger.Info().Uint("contract_id", id).Int("files", len(keys)).Msg("[Workflow] Contract deleted")
	return nil
}
