package sync

import (
	"fmt"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/config"
	"github.com/xelth-com/eckwmsfield/internal/models"
)

// Decision is the outcome of a conflict resolution.
type Decision int

const (
	// TakeRemote discards the local change in favour of the server version.
	TakeRemote Decision = iota
	// KeepLocal uploads the local change over the server version.
	KeepLocal
)

func (d Decision) String() string {
	if d == KeepLocal {
		return "keep_local"
	}
	return "take_remote"
}

// ConflictPolicy decides what happens to a locally pending record. local
// holds the unacknowledged change, remote the current server version.
type ConflictPolicy interface {
	Resolve(local, remote models.SyncableEntity) Decision
}

// serverChanged reports whether the server version moved on since the
// local copy was taken. Postgres keeps microseconds, so both sides are
// compared at that precision.
func serverChanged(local, remote models.SyncableEntity) bool {
	base := local.Sync().SyncedAt.Truncate(time.Microsecond)
	return remote.Sync().UpdatedAt.Truncate(time.Microsecond).After(base)
}

// ServerWins uploads local changes unless the server version changed in the
// meantime, in which case the server version is kept.
type ServerWins struct{}

func (ServerWins) Resolve(local, remote models.SyncableEntity) Decision {
	if serverChanged(local, remote) {
		return TakeRemote
	}
	return KeepLocal
}

// LastWriterWins keeps whichever side was modified last. Ties go to the
// server.
type LastWriterWins struct{}

func (LastWriterWins) Resolve(local, remote models.SyncableEntity) Decision {
	if !serverChanged(local, remote) {
		return KeepLocal
	}
	if local.Sync().UpdatedAt.After(remote.Sync().UpdatedAt) {
		return KeepLocal
	}
	return TakeRemote
}

// ClientWins always uploads the local change.
type ClientWins struct{}

func (ClientWins) Resolve(models.SyncableEntity, models.SyncableEntity) Decision {
	return KeepLocal
}

// PolicyFor maps a configured strategy name to its policy. An empty name
// selects ServerWins.
func PolicyFor(strategy string) (ConflictPolicy, error) {
	switch strategy {
	case "", config.ConflictServerWins:
		return ServerWins{}, nil
	case config.ConflictClientWins:
		return ClientWins{}, nil
	case config.ConflictLastWriteWins:
		return LastWriterWins{}, nil
	}
	return nil, fmt.Errorf("unknown conflict resolution strategy %q", strategy)
}
