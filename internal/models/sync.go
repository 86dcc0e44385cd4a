package models

import (
	"time"

	"gorm.io/datatypes"
)

// Sync status values recorded per kind.
const (
	SyncStatusCompleted = "completed"
	SyncStatusPartial   = "partial"
	SyncStatusFailed    = "failed"
)

// SyncMetadata records the outcome of the last reconciliation of a kind.
type SyncMetadata struct {
	Kind       Kind           `gorm:"primaryKey;type:varchar(32)" json:"kind"`
	LastSyncAt time.Time      `json:"lastSyncAt"`
	Status     string         `gorm:"type:varchar(16)" json:"status"`
	Uploaded   int            `json:"uploaded"`
	Downloaded int            `json:"downloaded"`
	Deleted    int            `json:"deleted"`
	Errors     datatypes.JSON `json:"errors"` // []string
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (SyncMetadata) TableName() string { return "sync_metadata" }

// SyncCycle records the last full cycle that finished without errors. The
// table holds at most one row.
type SyncCycle struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	CompletedAt time.Time `json:"completedAt"`
}

func (SyncCycle) TableName() string { return "sync_cycles" }

// Credential is the persisted authentication state of the device. The
// table holds at most one row.
type Credential struct {
	ID           uint           `gorm:"primaryKey" json:"-"`
	Email        string         `json:"email"`
	AccessToken  string         `gorm:"type:text" json:"-"`
	RefreshToken string         `gorm:"type:text" json:"-"`
	User         datatypes.JSON `json:"user"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (Credential) TableName() string { return "credentials" }
