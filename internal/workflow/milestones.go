package workflow

import (
	"context"
	"strings"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
)

type CreateMilestoneInput struct {
	Description string                 `json:"description" binding:"required"`
	Status      models.MilestoneStatus `json:"status"`
}

func (e *Engine) CreateMilestone(ctx context.Context, actor authz.Actor, contractID uint, in CreateMilestoneInput) (_ *models.Milestone, err error) {
	defer e.observe("create_milestone", &err)()

	if err := e.authz.Authorize(ctx, actor, authz.MilestoneManage, contractID); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, apperr.Validation("description", "description is required")
	}
	status := models.MilestonePending
	if in.Status != "" {
		st, ok := models.ParseContractStatus(string(in.Status))
		if !ok {
			return nil, apperr.Validation("status", "status must be one of PENDING, COMPLETED")
		}
		status = st
	}

	milestone := &models.Milestone{ContractID: contractID, Description: description, Status: status}
	projectID, err := e.contractProject(ctx, contractID)
	if err != nil {
		return nil, err
	}
	c := newChange(actor)
	err = e.withProjectLock(ctx, projectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			// the contract may have been deleted while we waited for the lock
			if _, err := load[models.Contract](ctx, tx, "contract", contractID); err != nil {
				return err
			}
			if err := tx.Create(ctx, milestone); err != nil {
				return err
			}
			c.record("milestone", milestone.ID, projectID, "milestone.create", events.MilestoneCreated, "", string(milestone.Status), "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	return milestone, nil
}

func (e *Engine) GetMilestone(ctx context.Context, actor authz.Actor, id uint) (_ *models.Milestone, err error) {
	defer e.observe("get_milestone", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return load[models.Milestone](ctx, e.store, "milestone", id)
}

type MilestoneFilter struct {
	ContractID uint   `form:"contract_id"`
	ProjectID  uint   `form:"project_id"`
	Status     string `form:"status"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

func (e *Engine) ListMilestones(ctx context.Context, actor authz.Actor, f MilestoneFilter) (_ *Page[models.Milestone], err error) {
	defer e.observe("list_milestones", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	q := store.Where("1 = 1")
	if f.ContractID != 0 {
		q = q.And("contract_id = ?", f.ContractID)
	}
	if f.ProjectID != 0 {
		q = q.And("contract_id IN (SELECT contracts.id FROM contracts JOIN proposals ON proposals.id = contracts.proposal_id WHERE proposals.project_id = ?)", f.ProjectID)
	}
	if f.Status != "" {
		status, ok := models.ParseContractStatus(f.Status)
		if !ok {
			return nil, apperr.Validation("status", "unknown milestone status")
		}
		q = q.And("status = ?", status)
	}
	return list[models.Milestone](ctx, e.store, q, f.Page, f.PageSize)
}

// UpdateMilestoneInput leaves nil fields unchanged.
type UpdateMilestoneInput struct {
	Description *string                 `json:"description"`
	Status      *models.MilestoneStatus `json:"status"`
}

// UpdateMilestone changes a milestone's description or status. Either
// contract party may move it between PENDING and COMPLETED at any time.
func (e *Engine) UpdateMilestone(ctx context.Context, actor authz.Actor, id uint, in UpdateMilestoneInput) (_ *models.Milestone, err error) {
	defer e.observe("update_milestone", &err)()

	head, err := load[models.Milestone](ctx, e.store, "milestone", id)
	if err != nil {
		return nil, err
	}
	if err := e.authz.Authorize(ctx, actor, authz.MilestoneManage, head.ContractID); err != nil {
		return nil, err
	}
	patch, err := contractPatch(in.Description, in.Status)
	if err != nil {
		return nil, err
	}

	var milestone models.Milestone
	c := newChange(actor)
	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Get(ctx, &milestone, id); err != nil {
			return notFound(err, "milestone", id)
		}
		from := milestone.Status
		if len(patch) == 0 {
			return nil
		}
		if err := tx.Update(ctx, &milestone, id, patch); err != nil {
			return err
		}
		projectID, err := e.projectOfMilestone(ctx, tx, &milestone)
		if err != nil {
			return err
		}
		c.record("milestone", id, projectID, "milestone.update", events.MilestoneUpdated, string(from), string(milestone.Status), "")
		return c.write(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	return &milestone, nil
}

func (e *Engine) projectOfMilestone(ctx context.Context, tx *store.Store, m *models.Milestone) (uint, error) {
	contract, err := load[models.Contract](ctx, tx, "contract", m.ContractID)
	if err != nil {
		return 0, err
	}
	return e.projectOfContract(ctx, tx, contract)
}

// DeleteMilestone removes a milestone and its attached file.
func (e *Engine) DeleteMilestone(ctx context.Context, actor authz.Actor, id uint) (err error) {
	defer e.observe("delete_milestone", &err)()

	head, err := load[models.Milestone](ctx, e.store, "milestone", id)
	if err != nil {
		return err
	}
	if err := e.authz.Authorize(ctx, actor, authz.MilestoneManage, head.ContractID); err != nil {
		return err
	}
	projectID, err := e.projectOfMilestone(ctx, e.store, head)
	if err != nil {
		return err
	}

	var keys []string
	c := newChange(actor)
	err = e.withProjectLock(ctx, projectID, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			milestone, err := load[models.Milestone](ctx, tx, "milestone", id)
			if err != nil {
				return err
			}
			var files []models.File
			if err := tx.Find(ctx, &files, store.Where("milestone_id = ?", id)); err != nil {
				return err
			}
			for _, f := range files {
				if err := tx.Delete(ctx, &models.File{}, f.ID); err != nil {
					return err
				}
				keys = append(keys, f.StorageKey)
				c.record("file", f.ID, projectID, "file.delete", events.FileDeleted, "", "", "milestone deleted")
			}
			if err := tx.Delete(ctx, &models.Milestone{}, id); err != nil {
				return notFound(err, "milestone", id)
			}
			c.record("milestone", id, projectID, "milestone.delete", events.MilestoneDeleted, string(milestone.Status), "", "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return err
	}
	e.commit(ctx, c)
	e.deleteBlobs(ctx, keys...)
	return nil
}
