// Package store is the durable entity store behind the workflow engine.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("store: record not found")
	ErrDuplicate = errors.New("store: duplicate record")
)

// Store wraps a gorm handle. Inside Transaction the handle is the transaction.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle for queries the Store does not model.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Cond is one WHERE clause.
type Cond struct {
	Expr string
	Args []interface{}
}

// Query is a predicate plus ordering and paging for Find/Count/First.
type Query struct {
	Conds  []Cond
	Order  string
	Limit  int
	Offset int
}

func Where(expr string, args ...interface{}) Query {
	return Query{Conds: []Cond{{Expr: expr, Args: args}}}
}

func (q Query) And(expr string, args ...interface{}) Query {
	conds := make([]Cond, len(q.Conds), len(q.Conds)+1)
	copy(conds, q.Conds)
	q.Conds = append(conds, Cond{Expr: expr, Args: args})
	return q
}

func (q Query) OrderBy(order string) Query {
	q.Order = order
	return q
}

// Page applies 1-based page numbering.
func (q Query) Page(page, pageSize int) Query {
	if page < 1 {
		page = 1
	}
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize
	return q
}

func (q Query) apply(db *gorm.DB, paged bool) *gorm.DB {
	for _, c := range q.Conds {
		db = db.Where(c.Expr, c.Args...)
	}
	if !paged {
		return db
	}
	if q.Order != "" {
		db = db.Order(q.Order)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// Create inserts entity and fills in its generated id and timestamps.
func (s *Store) Create(ctx context.Context, entity interface{}) error {
	return translate(s.db.WithContext(ctx).Create(entity).Error)
}

// Get loads the record with the given id into dest.
func (s *Store) Get(ctx context.Context, dest interface{}, id uint) error {
	return translate(s.db.WithContext(ctx).First(dest, id).Error)
}

// First loads the first record matching q into dest.
func (s *Store) First(ctx context.Context, dest interface{}, q Query) error {
	db := q.apply(s.db.WithContext(ctx), true)
	return translate(db.First(dest).Error)
}

// Find loads every record matching q into dest, a pointer to a slice.
func (s *Store) Find(ctx context.Context, dest interface{}, q Query) error {
	db := q.apply(s.db.WithContext(ctx), true)
	return translate(db.Find(dest).Error)
}

// Count counts records of model matching q, ignoring paging.
func (s *Store) Count(ctx context.Context, model interface{}, q Query) (int64, error) {
	var total int64
	db := q.apply(s.db.WithContext(ctx).Model(model), false)
	if err := db.Count(&total).Error; err != nil {
		return 0, translate(err)
	}
	return total, nil
}

// CountBy counts records of model matching q grouped by column.
func (s *Store) CountBy(ctx context.Context, model interface{}, q Query, column string) (map[string]int64, error) {
	var rows []struct {
		GroupKey string
		Total    int64
	}
	db := q.apply(s.db.WithContext(ctx).Model(model), false)
	err := db.Select(column + " AS group_key, COUNT(*) AS total").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.GroupKey] = r.Total
	}
	return out, nil
}

// Update applies patch to the record with the given id and reloads dest.
// Either every column in patch is written or none is.
func (s *Store) Update(ctx context.Context, dest interface{}, id uint, patch map[string]interface{}) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.Get(ctx, dest, id); err != nil {
			return err
		}
		if len(patch) > 0 {
			if err := tx.db.WithContext(ctx).Model(dest).Updates(patch).Error; err != nil {
				return translate(err)
			}
		}
		return tx.Get(ctx, dest, id)
	})
}

// UpdateWhere updates the record with the given id only if it also matches q.
// It reports whether a row matched, which makes it usable as a compare-and-set.
func (s *Store) UpdateWhere(ctx context.Context, model interface{}, id uint, q Query, patch map[string]interface{}) (bool, error) {
	db := q.apply(s.db.WithContext(ctx).Model(model).Where("id = ?", id), false)
	result := db.Updates(patch)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the record with the given id. A missing id is ErrNotFound.
func (s *Store) Delete(ctx context.Context, model interface{}, id uint) error {
	result := s.db.WithContext(ctx).Delete(model, id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere removes every record of model matching q and returns the count.
func (s *Store) DeleteWhere(ctx context.Context, model interface{}, q Query) (int64, error) {
	if len(q.Conds) == 0 {
		return 0, errors.New("store: refusing unconditional delete")
	}
	result := q.apply(s.db.WithContext(ctx), false).Delete(model)
	if result.Error != nil {
		return 0, translate(result.Error)
	}
	return result.RowsAffected, nil
}

// Transaction runs fn inside a database transaction. fn must only use tx.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Store{db: db})
	})
}

// Load is a typed Get.
func Load[T any](ctx context.Context, s *Store, id uint) (*T, error) {
	var v T
	if err := s.Get(ctx, &v, id); err != nil {
		return nil, err
	}
	return &v, nil
}
