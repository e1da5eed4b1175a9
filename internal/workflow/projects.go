package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/pkg/logger"
)

type CreateProjectInput struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description" binding:"required"`
	MinBudget   float64   `json:"min_budget"`
	MaxBudget   float64   `json:"max_budget"`
	Deadline    time.Time `json:"deadline" binding:"required"`
	Skills      []string  `json:"skills"`
}

const minTitleLength = 5

func (in *CreateProjectInput) normalize(now time.Time) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Skills = normalizeSkills(in.Skills)

	switch {
	case len([]rune(in.Title)) < minTitleLength:
		return apperr.Validation("title", fmt.Sprintf("title must be at least %d characters", minTitleLength))
	case in.Description == "":
		return apperr.Validation("description", "description is required")
	case in.MinBudget <= 0:
		return apperr.Validation("min_budget", "minimum budget must be greater than 0")
	case in.MaxBudget <= 0:
		return apperr.Validation("max_budget", "maximum budget must be greater than 0")
	case in.MinBudget > in.MaxBudget:
		return apperr.Validation("max_budget", "maximum budget must not be less than minimum budget")
	case !in.Deadline.After(now):
		return apperr.Validation("deadline", "deadline must be in the future")
	case len(in.Skills) == 0:
		return apperr.Validation("skills", "at least one skill is required")
	}
	return nil
}

// normalizeSkills trims, drops empties and removes case-insensitive duplicates,
// keeping the first spelling.
func normalizeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func (e *Engine) CreateProject(ctx context.Context, actor authz.Actor, in CreateProjectInput) (_ *models.Project, err error) {
	defer e.observe("create_project", &err)()

	if err := e.authz.Authorize(ctx, actor, authz.ProjectCreate, 0); err != nil {
		return nil, err
	}
	if err := in.normalize(e.now()); err != nil {
		return nil, err
	}

	project := &models.Project{
		ClientID:    actor.ID,
		Title:       in.Title,
		Description: in.Description,
		MinBudget:   in.MinBudget,
		MaxBudget:   in.MaxBudget,
		Deadline:    in.Deadline,
		Skills:      in.Skills,
		Status:      models.ProjectOpen,
	}

	c := newChange(actor)
	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Create(ctx, project); err != nil {
			return err
		}
		c.record("project", project.ID, project.ID, "project.create", events.ProjectCreated, "", string(project.Status), project.Title)
		return c.write(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	return project, nil
}

func (e *Engine) GetProject(ctx context.Context, actor authz.Actor, id uint) (_ *models.Project, err error) {
	defer e.observe("get_project", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return load[models.Project](ctx, e.store, "project", id)
}

type ProjectFilter struct {
	Status   string `form:"status"`
	ClientID uint   `form:"client_id"`
	Skill    string `form:"skill"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

func (e *Engine) ListProjects(ctx context.Context, actor authz.Actor, f ProjectFilter) (_ *Page[models.Project], err error) {
	defer e.observe("list_projects", &err)()

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	q := store.Where("1 = 1")
	if f.Status != "" {
		status, ok := models.ParseProjectStatus(f.Status)
		if !ok {
			return nil, apperr.Validation("status", "unknown project status")
		}
		q = q.And("status = ?", status)
	}
	if f.ClientID != 0 {
		q = q.And("client_id = ?", f.ClientID)
	}
	if skill := strings.TrimSpace(f.Skill); skill != "" {
		// skills is a JSON array column
		q = q.And("LOWER(skills) LIKE ?", "%\""+strings.ToLower(skill)+"\"%")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.And("(title LIKE ? OR description LIKE ?)", "%"+s+"%", "%"+s+"%")
	}
	return list[models.Project](ctx, e.store, q, f.Page, f.PageSize)
}

// ChangeProjectStatus lets the owning client or an admin set any status,
// including reopening a closed project.
func (e *Engine) ChangeProjectStatus(ctx context.Context, actor authz.Actor, id uint, status models.ProjectStatus) (_ *models.Project, err error) {
	defer e.observe("change_project_status", &err)()

	var project models.Project
	c := newChange(actor)
	err = e.withProjectLock(ctx, id, func() error {
		return e.store.Transaction(ctx, func(tx *store.Store) error {
			if err := e.authz.WithStore(tx).Authorize(ctx, actor, authz.ProjectStatus, id); err != nil {
				return err
			}
			target, ok := models.ParseProjectStatus(string(status))
			if !ok {
				return apperr.Validation("status", "status must be one of OPEN, IN_PROGRESS, CLOSED")
			}
			if err := tx.Get(ctx, &project, id); err != nil {
				return notFound(err, "project", id)
			}
			from := project.Status
			if from == target {
				return nil
			}
			if err := tx.Update(ctx, &project, id, map[string]interface{}{"status": target}); err != nil {
				return err
			}
			c.record("project", id, id, "project.status", events.ProjectStatusChanged, string(from), string(target), "")
			return c.write(ctx, tx)
		})
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, c)
	logger.Debug().Uint("project_id", id).Str("status", string(project.Status)).Msg("[Workflow] Project status changed")
	return &project, nil
}
