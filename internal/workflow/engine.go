// Package workflow is the authoritative state machine for projects, proposals,
// contracts, milestones and files. Every operation takes an explicit actor
// and either fully succeeds or changes nothing.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/audit"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/lock"
	"github.com/gigflow/backend/internal/metrics"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/storage"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/pkg/logger"
)

type Engine struct {
	store          *store.Store
	authz          *authz.Authorizer
	locker         lock.Locker
	publisher      events.Publisher
	blobs          storage.Storage
	now            func() time.Time
	rejectSiblings bool
}

type Option func(*Engine)

func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithStorage(s storage.Storage) Option {
	return func(e *Engine) { e.blobs = s }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRejectSiblings controls whether accepting a proposal rejects the other
// pending proposals of the same project in the same transaction.
func WithRejectSiblings(reject bool) Option {
	return func(e *Engine) { e.rejectSiblings = reject }
}

func New(s *store.Store, a *authz.Authorizer, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		authz:          a,
		locker:         lock.NewMemoryLocker(),
		publisher:      events.Nop{},
		now:            time.Now,
		rejectSiblings: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Page is one page of a filtered list.
type Page[T any] struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Items    []T   `json:"items"`
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

func list[T any](ctx context.Context, s *store.Store, q store.Query, page, size int) (*Page[T], error) {
	page, size = normalizePage(page, size)
	var zero T
	total, err := s.Count(ctx, &zero, q)
	if err != nil {
		return nil, err
	}
	items := []T{}
	if err := s.Find(ctx, &items, q.OrderBy("created_at DESC, id DESC").Page(page, size)); err != nil {
		return nil, err
	}
	return &Page[T]{Total: total, Page: page, PageSize: size, Items: items}, nil
}

// observe records latency for op and, on return, turns any error into an
// *apperr.Error. Storage faults become Conflict and are logged.
func (e *Engine) observe(op string, errp *error) func() {
	done := metrics.Track(op)
	return func() {
		done()
		if *errp == nil {
			return
		}
		*errp = normalize(op, *errp)
		metrics.OperationError(op, string(apperr.KindOf(*errp)))
	}
}

func normalize(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("record not found").Wrap(err)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.Validation("", "record already exists").Wrap(err)
	case errors.Is(err, lock.ErrTimeout):
		return apperr.Conflict("resource is busy, please retry").Wrap(err)
	}
	logger.Error().Err(err).Str("op", op).Msg("[Workflow] Operation failed")
	return apperr.Conflict("%s could not be completed, please retry", op).Wrap(err)
}

func notFound(err error, entity string, id uint) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s %d not found", entity, id)
	}
	return err
}

// load fetches one entity and reports a missing id as NotFound.
func load[T any](ctx context.Context, s *store.Store, entity string, id uint) (*T, error) {
	v, err := store.Load[T](ctx, s, id)
	if err != nil {
		return nil, notFound(err, entity, id)
	}
	return v, nil
}

// requireActor guards reads, which are open to any authenticated actor.
func requireActor(actor authz.Actor) error {
	if !actor.Role.Valid() {
		return apperr.Forbidden("authentication required")
	}
	return nil
}

func (e *Engine) withProjectLock(ctx context.Context, projectID uint, fn func() error) error {
	unlock, err := e.locker.Lock(ctx, lock.ProjectKey(projectID))
	if err != nil {
		return apperr.Conflict("project %d is busy, please retry", projectID).Wrap(err)
	}
	defer unlock()
	return fn()
}

// change collects the audit entries and events of one operation. Audit
// entries are written inside the transaction; events go out after commit.
type change struct {
	actor   authz.Actor
	entries []audit.Entry
	events  []events.Event
}

func newChange(actor authz.Actor) *change {
	return &change{actor: actor}
}

func (c *change) record(entity string, entityID, projectID uint, action string, evt events.Type, from, to string, msg string) {
	c.recordAs(c.actor.Role, entity, entityID, projectID, action, evt, from, to, msg)
}

func (c *change) recordAs(role models.Role, entity string, entityID, projectID uint, action string, evt events.Type, from, to string, msg string) {
	c.entries = append(c.entries, audit.Entry{
		EntityType: entity,
		EntityID:   entityID,
		Action:     action,
		From:       from,
		To:         to,
		ActorID:    c.actor.ID,
		ActorRole:  role,
		Message:    msg,
	})
	c.events = append(c.events, events.Event{
		Type:      evt,
		ProjectID: projectID,
		EntityID:  entityID,
		ActorID:   c.actor.ID,
		Status:    to,
	})
}

func (c *change) write(ctx context.Context, tx *store.Store) error {
	for _, entry := range c.entries {
		if err := audit.Write(ctx, tx, entry); err != nil {
			return fmt.Errorf("write audit entry: %w", err)
		}
	}
	return nil
}

// commit publishes the collected events. Call it only after the transaction committed.
func (e *Engine) commit(ctx context.Context, c *change) {
	at := e.now()
	for _, evt := range c.events {
		evt.At = at
		if evt.Status != "" {
			metrics.Transition(entityOf(evt.Type), evt.Status)
		}
		e.publisher.Publish(ctx, evt)
	}
}

func entityOf(t events.Type) string {
	entity, _, _ := strings.Cut(string(t), ".")
	return entity
}

// deleteBlobs removes stored contents after the metadata is gone. Failures
// leave an orphaned blob, never a dangling record.
func (e *Engine) deleteBlobs(ctx context.Context, keys ...string) {
	if e.blobs == nil {
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := e.blobs.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("[Workflow] Failed to delete stored file")
		}
	}
}
