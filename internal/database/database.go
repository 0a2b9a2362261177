package database

import (
	"fmt"

	"github.com/ksred/settler-api/internal/database/migrations"
	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/settlement"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&settlement.Record{},
		&settlement.Batch{},
		&rules.Rule{},
	)
	if err != nil {
		return nil, err
	}

	if err := migrations.AddPipelineIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
