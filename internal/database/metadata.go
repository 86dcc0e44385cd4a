package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

// SaveSyncMetadata upserts the reconciliation outcome of one kind.
func (db *DB) SaveSyncMetadata(ctx context.Context, meta *models.SyncMetadata, errs []string) error {
	if errs == nil {
		errs = []string{}
	}
	raw, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("%w: encode sync errors: %v", ErrStore, err)
	}
	meta.Errors = datatypes.JSON(raw)
	meta.UpdatedAt = time.Now().UTC()

	if err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(meta).Error; err != nil {
		return fmt.Errorf("%w: save sync metadata %s: %v", ErrStore, meta.Kind, err)
	}
	return nil
}

// ListSyncMetadata returns the recorded outcome of every kind synced so far.
func (db *DB) ListSyncMetadata(ctx context.Context) ([]models.SyncMetadata, error) {
	var rows []models.SyncMetadata
	if err := db.WithContext(ctx).Order("kind").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list sync metadata: %v", ErrStore, err)
	}
	return rows, nil
}

const cycleRowID = 1

// SaveLastSyncTime records the end of a full cycle that finished without
// errors. Per-kind rows never feed it.
func (db *DB) SaveLastSyncTime(ctx context.Context, at time.Time) error {
	row := &models.SyncCycle{ID: cycleRowID, CompletedAt: at.UTC()}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return fmt.Errorf("%w: save last sync time: %v", ErrStore, err)
	}
	return nil
}

// LastSyncTime returns the end of the last fully successful cycle, or the
// zero time when there has been none.
func (db *DB) LastSyncTime(ctx context.Context) (time.Time, error) {
	var row models.SyncCycle
	err := db.WithContext(ctx).Take(&row, cycleRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: last sync time: %v", ErrStore, err)
	}
	return row.CompletedAt, nil
}
