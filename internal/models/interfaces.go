package models

import "time"

// SyncableEntity is implemented by every record kind the field client
// mirrors from the server.
type SyncableEntity interface {
	Kind() Kind
	Key() ID
	SetKey(id ID)
	IsDeleted() bool
	MarkDeleted(at time.Time)
	IsPending() bool
	SetPending(pending bool)
	References() []Reference
	Sync() *Record
}

// Reference is a foreign identity held by a record.
type Reference struct {
	Column string
	Target Kind
	ID     ID
}

// ProvisionalReferences returns the references that still point at
// device-local records.
func ProvisionalReferences(e SyncableEntity) []Reference {
	var out []Reference
	for _, ref := range e.References() {
		if ref.ID.IsLocal() {
			out = append(out, ref)
		}
	}
	return out
}

// Entity is the constraint satisfied by pointers to synchronized models,
// e.g. *Supplier.
type Entity[T any] interface {
	*T
	SyncableEntity
}
