// Package events is the in-process notification bus of the field client.
// Publishing never blocks: a subscriber that does not keep up loses events.
package events

import (
	"sync"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

// Type identifies an event.
type Type string

const (
	ConnectivityChanged Type = "connectivity"
	AuthChanged         Type = "auth"
	SyncStatusChanged   Type = "sync_status"
	DataChanged         Type = "data_changed"
)

// SyncState is the payload of SyncStatusChanged.
type SyncState string

const (
	SyncIdle      SyncState = "idle"
	SyncSyncing   SyncState = "syncing"
	SyncCompleted SyncState = "completed"
	SyncFailed    SyncState = "failed"
)

// Event is a single notification. Payload depends on Type:
// bool for connectivity and auth, SyncStatus for sync_status, models.Kind
// for data_changed.
type Event struct {
	Type    Type      `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// SyncStatus describes a sync state transition.
type SyncStatus struct {
	State   SyncState   `json:"state"`
	Kind    models.Kind `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
}

const subscriberBuffer = 64

// Bus fans events out to subscribers. A nil *Bus is valid and drops
// everything.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered channel receiving every event published after
// the call, and a function that unsubscribes and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber whose buffer has room.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Bus) Connectivity(online bool) {
	b.Publish(Event{Type: ConnectivityChanged, Payload: online})
}

func (b *Bus) Auth(authenticated bool) {
	b.Publish(Event{Type: AuthChanged, Payload: authenticated})
}

func (b *Bus) SyncStatus(s SyncStatus) {
	b.Publish(Event{Type: SyncStatusChanged, Payload: s})
}

func (b *Bus) DataChanged(kind models.Kind) {
	b.Publish(Event{Type: DataChanged, Payload: kind})
}
