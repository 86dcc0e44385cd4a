package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

// Resource is the REST collection of one entity kind.
type Resource[T any, P models.Entity[T]] struct {
	c    *Client
	kind models.Kind
}

func NewResource[T any, P models.Entity[T]](c *Client) *Resource[T, P] {
	return &Resource[T, P]{c: c, kind: P(new(T)).Kind()}
}

func (r *Resource[T, P]) Kind() models.Kind { return r.kind }

func (r *Resource[T, P]) collection() string { return "/" + string(r.kind) }

func (r *Resource[T, P]) item(id models.ID) string {
	return fmt.Sprintf("/%s/%d", r.kind, id.Number())
}

// List returns every record the server holds for the kind.
func (r *Resource[T, P]) List(ctx context.Context) ([]P, error) {
	var rows []T
	if err := r.c.Do(ctx, http.MethodGet, r.collection(), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]P, 0, len(rows))
	for i := range rows {
		rec := P(&rows[i])
		if !rec.Key().IsRemote() {
			return nil, fmt.Errorf("GET %s: %w: record without server id", r.collection(), ErrBadResponse)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Resource[T, P]) Get(ctx context.Context, id models.ID) (P, error) {
	if !id.IsRemote() {
		return nil, fmt.Errorf("get %s %s: %w", r.kind, id, ErrProvisionalReference)
	}
	var rec T
	if err := r.c.Do(ctx, http.MethodGet, r.item(id), nil, &rec); err != nil {
		return nil, err
	}
	return P(&rec), nil
}

// Create posts rec without its identity and returns the server's version,
// which carries the assigned id.
func (r *Resource[T, P]) Create(ctx context.Context, rec P) (P, error) {
	if err := checkReferences(rec); err != nil {
		return nil, fmt.Errorf("create %s: %w", r.kind, err)
	}
	payload := *(*T)(rec)
	P(&payload).SetKey(models.ID{})

	var created T
	if err := r.c.Do(ctx, http.MethodPost, r.collection(), &payload, &created); err != nil {
		return nil, err
	}
	out := P(&created)
	if !out.Key().IsRemote() {
		return nil, fmt.Errorf("POST %s: %w: no server id assigned", r.collection(), ErrBadResponse)
	}
	return out, nil
}

// Update replaces the server's copy of rec and returns the stored version.
// A server answering without a body yields rec itself.
func (r *Resource[T, P]) Update(ctx context.Context, rec P) (P, error) {
	if !rec.Key().IsRemote() {
		return nil, fmt.Errorf("update %s %s: %w", r.kind, rec.Key(), ErrProvisionalReference)
	}
	if err := checkReferences(rec); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", r.kind, rec.Key(), err)
	}
	var updated T
	if err := r.c.Do(ctx, http.MethodPut, r.item(rec.Key()), rec, &updated); err != nil {
		return nil, err
	}
	if P(&updated).Key().IsZero() {
		return rec, nil
	}
	return P(&updated), nil
}

func (r *Resource[T, P]) Delete(ctx context.Context, id models.ID) error {
	if !id.IsRemote() {
		return fmt.Errorf("delete %s %s: %w", r.kind, id, ErrProvisionalReference)
	}
	return r.c.Do(ctx, http.MethodDelete, r.item(id), nil, nil)
}

func checkReferences(rec models.SyncableEntity) error {
	if refs := models.ProvisionalReferences(rec); len(refs) > 0 {
		return fmt.Errorf("%w: %s -> %s", ErrProvisionalReference, refs[0].Column, refs[0].ID)
	}
	return nil
}
