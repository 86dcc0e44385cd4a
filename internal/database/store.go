package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

// Store is the local table of one entity kind.
type Store[T any, P models.Entity[T]] struct {
	db *DB
}

// NewStore binds a store for T to db.
func NewStore[T any, P models.Entity[T]](db *DB) *Store[T, P] {
	return &Store[T, P]{db: db}
}

// Kind returns the kind the store holds.
func (s *Store[T, P]) Kind() models.Kind {
	return P(new(T)).Kind()
}

func (s *Store[T, P]) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", s.Kind(), op, ErrRecordNotFound)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrStore, s.Kind(), op, err)
}

// Get returns a record by identity, deleted or not.
func (s *Store[T, P]) Get(ctx context.Context, id models.ID) (P, error) {
	var rec T
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, s.wrap("get "+id.String(), err)
	}
	return P(&rec), nil
}

// ListAll returns every record, optionally including soft-deleted ones.
func (s *Store[T, P]) ListAll(ctx context.Context, includeDeleted bool) ([]P, error) {
	q := s.db.WithContext(ctx)
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	return s.find(q, "list")
}

// ListProvisional returns records created offline that the server has not
// seen yet, excluding ones deleted before they were uploaded.
func (s *Store[T, P]) ListProvisional(ctx context.Context) ([]P, error) {
	return s.find(s.db.WithContext(ctx).Where("id < 0 AND deleted = ?", false), "list provisional")
}

// ListPending returns server-known records with local changes not yet
// acknowledged by the server.
func (s *Store[T, P]) ListPending(ctx context.Context) ([]P, error) {
	return s.find(s.db.WithContext(ctx).Where("id > 0 AND pending = ?", true), "list pending")
}

func (s *Store[T, P]) find(q *gorm.DB, op string) ([]P, error) {
	var rows []T
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, s.wrap(op, err)
	}
	out := make([]P, len(rows))
	for i := range rows {
		out[i] = P(&rows[i])
	}
	return out, nil
}

// Insert adds a new record. A record without identity receives a
// provisional one.
func (s *Store[T, P]) Insert(ctx context.Context, rec P) error {
	if rec.Key().IsZero() {
		rec.SetKey(models.NewProvisionalID())
	}
	r := rec.Sync()
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	return s.wrap("insert", s.db.WithContext(ctx).Create(rec).Error)
}

// Save writes the full record, inserting it when it does not exist.
func (s *Store[T, P]) Save(ctx context.Context, rec P) error {
	if rec.Key().IsZero() {
		return fmt.Errorf("%w: %s save: record has no id", ErrStore, s.Kind())
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	return s.wrap("save "+rec.Key().String(), err)
}

// SoftDelete flags the record deleted. Deleting an already deleted record
// keeps its original deletion time.
func (s *Store[T, P]) SoftDelete(ctx context.Context, id models.ID, at time.Time) error {
	return s.softDelete(ctx, id, at, false)
}

// SoftDeletePending flags the record deleted and pending in one write, so
// the deletion cannot be stored without the marker that uploads it.
func (s *Store[T, P]) SoftDeletePending(ctx context.Context, id models.ID, at time.Time) error {
	return s.softDelete(ctx, id, at, true)
}

func (s *Store[T, P]) softDelete(ctx context.Context, id models.ID, at time.Time, pending bool) error {
	at = at.UTC()
	cols := map[string]any{"deleted": true, "deleted_at": at, "updated_at": at}
	if pending {
		cols["pending"] = true
	}
	res := s.db.WithContext(ctx).Model(new(T)).
		Where("id = ? AND deleted = ?", id, false).
		Updates(cols)
	if res.Error != nil {
		return s.wrap("soft delete "+id.String(), res.Error)
	}
	if res.RowsAffected == 0 {
		_, err := s.Get(ctx, id)
		return err
	}
	return nil
}

// SetPending sets or clears the unacknowledged-change marker.
func (s *Store[T, P]) SetPending(ctx context.Context, id models.ID, pending bool) error {
	res := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Update("pending", pending)
	if res.Error != nil {
		return s.wrap("set pending "+id.String(), res.Error)
	}
	if res.RowsAffected == 0 {
		return s.wrap("set pending "+id.String(), gorm.ErrRecordNotFound)
	}
	return nil
}

// ClearPending marks the record as acknowledged by the server.
func (s *Store[T, P]) ClearPending(ctx context.Context, id models.ID) error {
	return s.SetPending(ctx, id, false)
}

// Remove physically deletes a record. Removing a missing record is not an
// error.
func (s *Store[T, P]) Remove(ctx context.Context, id models.ID) error {
	return s.wrap("remove "+id.String(), s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T)).Error)
}

// RemoveDeletedProvisional purges records that were created and deleted
// offline. They never reached the server.
func (s *Store[T, P]) RemoveDeletedProvisional(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("id < 0 AND deleted = ?", true).Delete(new(T))
	return res.RowsAffected, s.wrap("purge provisional", res.Error)
}

// Promote replaces the provisional record oldID with rec, which carries the
// server identity, and rewrites every reference to oldID in dependent
// tables. All of it happens in one transaction.
func (s *Store[T, P]) Promote(ctx context.Context, oldID models.ID, rec P) error {
	newID := rec.Key()
	if !oldID.IsLocal() || !newID.IsRemote() {
		return fmt.Errorf("%w: %s promote %s -> %s: need local -> remote", ErrStore, s.Kind(), oldID, newID)
	}
	rec.SetPending(false)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", oldID).Delete(new(T)).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error; err != nil {
			return err
		}
		for _, fk := range s.Kind().Dependents() {
			if err := tx.Table(fk.Table).Where(fk.Column+" = ?", oldID).Update(fk.Column, newID).Error; err != nil {
				return fmt.Errorf("rewrite %s.%s: %w", fk.Table, fk.Column, err)
			}
		}
		return nil
	})
	return s.wrap(fmt.Sprintf("promote %s -> %s", oldID, newID), err)
}
