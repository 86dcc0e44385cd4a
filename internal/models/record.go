package models

import "time"

// Record holds the columns every synchronized table shares.
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type Record struct {
	ID        ID         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Deleted   bool       `gorm:"index;not null" json:"deleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updatedAt"`

	// Pending marks a local mutation the server has not acknowledged yet.
	Pending bool `gorm:"index;not null" json:"-"`
	// SyncedAt is the server UpdatedAt of the version the local copy is
	// based on. Conflict policies compare against it.
	SyncedAt time.Time `json:"-"`
}

func (r *Record) Key() ID         { return r.ID }
func (r *Record) SetKey(id ID)    { r.ID = id }
func (r *Record) IsDeleted() bool { return r.Deleted }
func (r *Record) IsPending() bool { return r.Pending }
func (r *Record) SetPending(p bool) {
	r.Pending = p
}
func (r *Record) Sync() *Record { return r }

// MarkSynced records that the local copy now equals the server's version.
func (r *Record) MarkSynced() {
	r.Pending = false
	r.SyncedAt = r.UpdatedAt
}

// MarkDeleted soft-deletes the record. A record already deleted keeps its
// original deletion time.
func (r *Record) MarkDeleted(at time.Time) {
	if r.Deleted && r.DeletedAt != nil {
		return
	}
	at = at.UTC()
	r.Deleted = true
	r.DeletedAt = &at
}
