package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

const credentialRow = 1

// LoadCredential returns the persisted session, or ErrRecordNotFound when
// the device is logged out.
func (db *DB) LoadCredential(ctx context.Context) (*models.Credential, error) {
	var c models.Credential
	err := db.WithContext(ctx).Where("id = ?", credentialRow).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("credentials: %w", ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load credentials: %v", ErrStore, err)
	}
	return &c, nil
}

// SaveCredential replaces the persisted session.
func (db *DB) SaveCredential(ctx context.Context, c *models.Credential) error {
	c.ID = credentialRow
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(c).Error; err != nil {
		return fmt.Errorf("%w: save credentials: %v", ErrStore, err)
	}
	return nil
}

// ClearCredentials removes the persisted session.
func (db *DB) ClearCredentials(ctx context.Context) error {
	if err := db.WithContext(ctx).Where("1 = 1").Delete(&models.Credential{}).Error; err != nil {
		return fmt.Errorf("%w: clear credentials: %v", ErrStore, err)
	}
	return nil
}
