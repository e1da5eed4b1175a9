// Package audit records and queries the trail of workflow state changes.
package audit

import (
	"context"
	"time"

	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
)

// Entry describes one state change. Write it with the same Store that made
// the change so both commit or roll back together.
type Entry struct {
	EntityType string
	EntityID   uint
	Action     string
	From       string
	To         string
	ActorID    uint
	ActorRole  models.Role
	Message    string
}

func Write(ctx context.Context, s *store.Store, e Entry) error {
	return s.Create(ctx, &models.AuditLog{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		FromStatus: e.From,
		ToStatus:   e.To,
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		Message:    e.Message,
	})
}

type Service struct {
	store *store.Store
	now   func() time.Time
}

func NewService(s *store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

type ListRequest struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	EntityType string `form:"entity_type"`
	EntityID   uint   `form:"entity_id"`
	Action     string `form:"action"`
	ActorID    uint   `form:"actor_id"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
}

type ListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.AuditLog `json:"items"`
}

func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	q := store.Where("1 = 1")
	if req.EntityType != "" {
		q = q.And("entity_type = ?", req.EntityType)
	}
	if req.EntityID != 0 {
		q = q.And("entity_id = ?", req.EntityID)
	}
	if req.Action != "" {
		q = q.And("action LIKE ?", "%"+req.Action+"%")
	}
	if req.ActorID != 0 {
		q = q.And("actor_id = ?", req.ActorID)
	}
	if req.StartDate != "" {
		q = q.And("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		q = q.And("created_at <= ?", req.EndDate+" 23:59:59")
	}

	total, err := s.store.Count(ctx, &models.AuditLog{}, q)
	if err != nil {
		return nil, err
	}

	items := []models.AuditLog{}
	if err := s.store.Find(ctx, &items, q.OrderBy("created_at DESC, id DESC").Page(req.Page, req.PageSize)); err != nil {
		return nil, err
	}

	return &ListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// Cleanup deletes entries older than retentionDays and returns how many went.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	return s.store.DeleteWhere(ctx, &models.AuditLog{}, store.Where("created_at < ?", cutoff))
}
