// Package dataservice is the write path used by the field UI. Writes go to
// the server first when it is reachable and always end up in the local
// store, so offline edits are never lost.
package dataservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/database"
	"github.com/xelth-com/eckwmsfield/internal/events"
	"github.com/xelth-com/eckwmsfield/internal/logging"
	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/remote"
)

var (
	// ErrReadOnly is returned for writes to kinds the server owns exclusively.
	ErrReadOnly = errors.New("entity kind is read-only on the client")
	// ErrDeleted is returned when updating a record that was deleted.
	ErrDeleted = errors.New("record is deleted")
)

// Connectivity reports server reachability.
type Connectivity interface {
	IsConnected() bool
}

// Authenticator reports whether a usable credential is held.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// Deps are the collaborators shared by every kind's service.
type Deps struct {
	DB     *database.DB
	Client *remote.Client
	Conn   Connectivity
	Auth   Authenticator
	Bus    *events.Bus
	Log    logging.Logger
}

// Service is the write-through CRUD facade of one entity kind.
type Service[T any, P models.Entity[T]] struct {
	store  *database.Store[T, P]
	remote *remote.Resource[T, P]
	conn   Connectivity
	auth   Authenticator
	bus    *events.Bus
	log    logging.Logger
	now    func() time.Time
}

func NewService[T any, P models.Entity[T]](d Deps) *Service[T, P] {
	log := d.Log
	if log == nil {
		log = logging.Discard()
	}
	s := &Service[T, P]{
		store:  database.NewStore[T, P](d.DB),
		remote: remote.NewResource[T, P](d.Client),
		conn:   d.Conn,
		auth:   d.Auth,
		bus:    d.Bus,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.log = log.With("component", "dataservice", "kind", s.Kind())
	return s
}

func (s *Service[T, P]) Kind() models.Kind { return s.store.Kind() }

// CanSyncWithServer is true when the server is reachable and the session
// holds a valid credential.
func (s *Service[T, P]) CanSyncWithServer(ctx context.Context) bool {
	return s.conn.IsConnected() && s.auth.IsAuthenticated(ctx)
}

func (s *Service[T, P]) Get(ctx context.Context, id models.ID) (P, error) {
	return s.store.Get(ctx, id)
}

// List returns the active local records.
func (s *Service[T, P]) List(ctx context.Context) ([]P, error) {
	return s.store.ListAll(ctx, false)
}

func (s *Service[T, P]) writable() error {
	if s.Kind().ReadOnly() {
		return fmt.Errorf("%s: %w", s.Kind(), ErrReadOnly)
	}
	return nil
}

// Create stores a new record. Online, the record is created on the server
// and mirrored locally under its server id; otherwise it is stored under a
// provisional id for the next sync cycle to upload.
func (s *Service[T, P]) Create(ctx context.Context, rec P) (P, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	rec.SetKey(models.ID{})
	rec.SetPending(false)
	rec.Sync().UpdatedAt = s.now()

	if len(models.ProvisionalReferences(rec)) == 0 && s.CanSyncWithServer(ctx) {
		created, err := s.remote.Create(ctx, rec)
		if err == nil {
			created.Sync().MarkSynced()
			if err := s.store.Save(ctx, created); err != nil {
				return nil, err
			}
			s.bus.DataChanged(s.Kind())
			return created, nil
		}
		s.log.Warn(ctx, "remote create failed, storing locally", "err", err)
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "created offline", "id", rec.Key())
	s.bus.DataChanged(s.Kind())
	return rec, nil
}

// Update replaces a record. Offline updates of server-known records are
// marked pending and pushed by the next sync cycle.
func (s *Service[T, P]) Update(ctx context.Context, rec P) error {
	if err := s.writable(); err != nil {
		return err
	}
	id := rec.Key()
	if id.IsZero() {
		return fmt.Errorf("%s update: record has no id", s.Kind())
	}
	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if stored.IsDeleted() {
		return fmt.Errorf("%s update %s: %w", s.Kind(), id, ErrDeleted)
	}
	// deletion goes through Delete only
	rec.Sync().Deleted = false
	rec.Sync().DeletedAt = nil
	rec.Sync().UpdatedAt = s.now()
	rec.Sync().SyncedAt = stored.Sync().SyncedAt
	rec.SetPending(false)

	if id.IsRemote() {
		rec.SetPending(true)
		if len(models.ProvisionalReferences(rec)) == 0 && s.CanSyncWithServer(ctx) {
			updated, err := s.remote.Update(ctx, rec)
			if err == nil {
				updated.Sync().MarkSynced()
				rec = updated
			} else {
				s.log.Warn(ctx, "remote update failed, keeping change locally", "id", id, "err", err)
			}
		}
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return err
	}
	s.bus.DataChanged(s.Kind())
	return nil
}

// Delete soft-deletes a record locally and, when possible, on the server.
func (s *Service[T, P]) Delete(ctx context.Context, id models.ID) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}

	pending := false
	if id.IsRemote() {
		pending = true
		if s.CanSyncWithServer(ctx) {
			err := s.remote.Delete(ctx, id)
			if err == nil || errors.Is(err, remote.ErrNotFound) {
				pending = false
			} else {
				s.log.Warn(ctx, "remote delete failed, keeping deletion locally", "id", id, "err", err)
			}
		}
	}

	del := s.store.SoftDelete
	if pending {
		del = s.store.SoftDeletePending
	}
	if err := del(ctx, id, s.now()); err != nil {
		return err
	}
	s.bus.DataChanged(s.Kind())
	return nil
}
