package data

import (
	"fmt"
	"log"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
)

// Migrate creates or updates every governance table and index.
func Migrate(db *gorm.DB) error {
	models := gov.AllModels()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	log.Printf("data: migrated %d tables", len(models))
	return nil
}
