// Package migrations provides database migration management for voxpipe.
package migrations

import (
	"github.com/voxpipe/voxpipe/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
// - 002: Composite index for the per-stage claim path
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002ClaimIndex(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			// AutoMigrate all models in dependency order
			return tx.AutoMigrate(
				// Registered recordings
				&models.MediaFile{},

				// Pipeline state
				&models.StageState{},

				// Transcript data
				&models.Segment{},
				&models.SegmentTranslation{},

				// Artifact index
				&models.Artifact{},

				// Audit trails
				&models.StageTransition{},
				&models.ProviderCall{},
			)
		},
		Down: func(tx *gorm.DB) error {
			// Drop tables in reverse dependency order
			tables := []string{
				"provider_calls",
				"stage_transitions",
				"artifacts",
				"segment_translations",
				"segments",
				"stage_states",
				"media_files",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002ClaimIndex adds a composite index covering the claim query:
// eligible rows are selected by (stage, status) and ordered by
// last_transition_at, so one index serves both the filter and the sort.
func migration002ClaimIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Add composite index for the claim path",
		Up: func(tx *gorm.DB) error {
			return tx.Exec(
				"CREATE INDEX IF NOT EXISTS idx_stage_states_claim " +
					"ON stage_states (stage, status, last_transition_at)",
			).Error
		},
		Down: func(tx *gorm.DB) error {
			return tx.Exec("DROP INDEX IF EXISTS idx_stage_states_claim").Error
		},
	}
}
