package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/database"
	"github.com/xelth-com/eckwmsfield/internal/logging"
	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/remote"
)

// kindSyncer reconciles one entity kind.
type kindSyncer interface {
	kind() models.Kind
	run(ctx context.Context) KindResult
}

type reconciler[T any, P models.Entity[T]] struct {
	store  *database.Store[T, P]
	remote *remote.Resource[T, P]
	policy ConflictPolicy
	log    logging.Logger
	now    func() time.Time
}

func newReconciler[T any, P models.Entity[T]](db *database.DB, c *remote.Client, policy ConflictPolicy, log logging.Logger) *reconciler[T, P] {
	r := &reconciler[T, P]{
		store:  database.NewStore[T, P](db),
		remote: remote.NewResource[T, P](c),
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	r.log = log.With("kind", r.kind())
	return r
}

func (r *reconciler[T, P]) kind() models.Kind { return r.store.Kind() }

func (r *reconciler[T, P]) run(ctx context.Context) KindResult {
	res := KindResult{Kind: r.kind()}
	if !r.kind().ReadOnly() {
		r.upload(ctx, &res)
		if res.fatal {
			return res
		}
	}
	r.download(ctx, &res)
	return res
}

// upload pushes local changes: offline creations first, then pending
// updates and deletions of server-known records. A failing record is left
// untouched for the next cycle; a failing local store stops the kind.
func (r *reconciler[T, P]) upload(ctx context.Context, res *KindResult) {
	purged, err := r.store.RemoveDeletedProvisional(ctx)
	if err != nil {
		res.abort(err)
		return
	}
	res.Purged = int(purged)

	provisional, err := r.store.ListProvisional(ctx)
	if err != nil {
		res.abort(err)
		return
	}
	for _, rec := range provisional {
		if r.skipUnresolved(rec, res) {
			continue
		}
		oldID := rec.Key()
		created, err := r.remote.Create(ctx, rec)
		if err != nil {
			res.fail(fmt.Errorf("create %s %s: %w", r.kind(), oldID, err))
			continue
		}
		created.Sync().MarkSynced()
		if err := r.store.Promote(ctx, oldID, created); err != nil {
			res.abort(err)
			return
		}
		r.log.Debug(ctx, "uploaded", "local", oldID, "id", created.Key())
		res.Created++
	}

	pending, err := r.store.ListPending(ctx)
	if err != nil {
		res.abort(err)
		return
	}
	for _, rec := range pending {
		var err error
		if rec.IsDeleted() {
			err = r.pushDelete(ctx, rec, res)
		} else {
			err = r.pushUpdate(ctx, rec, res)
		}
		if err != nil {
			res.abort(err)
			return
		}
	}
}

// skipUnresolved records an error for a record that still points at
// records the server has not seen.
func (r *reconciler[T, P]) skipUnresolved(rec P, res *KindResult) bool {
	refs := models.ProvisionalReferences(rec)
	if len(refs) == 0 {
		return false
	}
	res.fail(fmt.Errorf("%s %s: %s references unsynced %s %s",
		r.kind(), rec.Key(), refs[0].Column, refs[0].Target, refs[0].ID))
	return true
}

// pushDelete propagates a local deletion. Only local store errors are
// returned; remote failures are accumulated in res.
func (r *reconciler[T, P]) pushDelete(ctx context.Context, rec P, res *KindResult) error {
	id := rec.Key()
	if err := r.remote.Delete(ctx, id); err != nil && !errors.Is(err, remote.ErrNotFound) {
		res.fail(fmt.Errorf("delete %s %s: %w", r.kind(), id, err))
		return nil
	}
	if err := r.store.ClearPending(ctx, id); err != nil {
		return err
	}
	res.Deleted++
	return nil
}

// pushUpdate uploads a local modification unless the conflict policy
// prefers the server's version. Only local store errors are returned.
func (r *reconciler[T, P]) pushUpdate(ctx context.Context, rec P, res *KindResult) error {
	id := rec.Key()
	if r.skipUnresolved(rec, res) {
		return nil
	}

	server, err := r.remote.Get(ctx, id)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		// gone on the server; the download pass applies the deletion
		return r.store.ClearPending(ctx, id)
	case err != nil:
		res.fail(fmt.Errorf("fetch %s %s: %w", r.kind(), id, err))
		return nil
	case server.IsDeleted():
		return r.store.ClearPending(ctx, id)
	}

	if r.policy.Resolve(rec, server) == TakeRemote {
		r.log.Info(ctx, "conflict resolved in favour of server", "id", id)
		res.Conflicts++
		server.Sync().MarkSynced()
		return r.store.Save(ctx, server)
	}

	updated, err := r.remote.Update(ctx, rec)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return r.store.ClearPending(ctx, id)
	case err != nil:
		res.fail(fmt.Errorf("update %s %s: %w", r.kind(), id, err))
		return nil
	}
	updated.Sync().MarkSynced()
	if err := r.store.Save(ctx, updated); err != nil {
		return err
	}
	res.Updated++
	return nil
}

// download mirrors the server collection into the local store. Server
// records flagged deleted count as absent.
func (r *reconciler[T, P]) download(ctx context.Context, res *KindResult) {
	serverRecs, err := r.remote.List(ctx)
	if err != nil {
		res.abort(fmt.Errorf("list %s: %w", r.kind(), err))
		return
	}
	local, err := r.store.ListAll(ctx, true)
	if err != nil {
		res.abort(err)
		return
	}
	byID := make(map[models.ID]P, len(local))
	for _, rec := range local {
		byID[rec.Key()] = rec
	}

	seen := make(map[models.ID]bool, len(serverRecs))
	for _, srv := range serverRecs {
		if srv.IsDeleted() {
			continue
		}
		id := srv.Key()
		seen[id] = true
		srv.Sync().MarkSynced()

		loc, ok := byID[id]
		switch {
		case !ok:
			if err := r.store.Save(ctx, srv); err != nil {
				res.abort(err)
				return
			}
			res.Downloaded++
		case loc.IsPending():
			// upload failed this cycle; retried next time
		case loc.IsDeleted():
			// a local delete is never resurrected
		case upToDate(loc, srv):
		default:
			if err := r.store.Save(ctx, srv); err != nil {
				res.abort(err)
				return
			}
			res.Refreshed++
		}
	}

	for _, loc := range local {
		id := loc.Key()
		if !id.IsRemote() || seen[id] || loc.IsPending() {
			continue
		}
		if r.kind().ReadOnly() {
			if err := r.store.Remove(ctx, id); err != nil {
				res.abort(err)
				return
			}
			res.Removed++
			continue
		}
		if loc.IsDeleted() {
			continue
		}
		if err := r.store.SoftDelete(ctx, id, r.now()); err != nil {
			res.abort(err)
			return
		}
		res.Removed++
	}
}

// upToDate reports whether loc already holds srv's content and base
// version, so rewriting it would change nothing.
func upToDate(loc, srv models.SyncableEntity) bool {
	a, b := loc.Sync().SyncedAt.Truncate(time.Microsecond), srv.Sync().SyncedAt.Truncate(time.Microsecond)
	if !a.Equal(b) {
		return false
	}
	return sameContent(loc, srv)
}

func sameContent(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
