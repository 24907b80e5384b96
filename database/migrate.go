package database

import (
	"fmt"

	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/utils"
	"gorm.io/gorm"
)

// uniqueIndexes must exist for the booking engine to be race safe.
var uniqueIndexes = []struct {
	model interface{}
	name  string
}{
	{&models.Table{}, "ux_tables_branch_name"},
	{&models.Reservation{}, "ux_reservations_table_slot"},
	{&models.Reservation{}, "ux_reservations_waitlist_slot"},
}

// Migrate creates or updates the schema and verifies the unique indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Branch{},
		&models.Table{},
		&models.Reservation{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, idx := range uniqueIndexes {
		if !db.Migrator().HasIndex(idx.model, idx.name) {
			if err := db.Migrator().CreateIndex(idx.model, idx.name); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}
		utils.InfoLogger.Printf("Index verified: %s", idx.name)
	}

	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
