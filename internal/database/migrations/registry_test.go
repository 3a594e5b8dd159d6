package migrations

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db
}

func TestAllMigrations_VersionsAreUnique(t *testing.T) {
	migrations := AllMigrations()
	require.NotEmpty(t, migrations)

	versions := make(map[string]bool)
	for _, m := range migrations {
		assert.False(t, versions[m.Version], "duplicate migration version %s", m.Version)
		versions[m.Version] = true
		assert.NotEmpty(t, m.Description)
		assert.NotNil(t, m.Up)
	}
}

func TestMigratorUp_AppliesAll(t *testing.T) {
	db := setupTestDB(t)
	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	ctx := context.Background()
	require.NoError(t, migrator.Up(ctx))

	for _, table := range []string{
		"media_files", "stage_states", "segments", "segment_translations",
		"artifacts", "stage_transitions", "provider_calls",
	} {
		assert.True(t, db.Migrator().HasTable(table), "expected table %s", table)
	}

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	for _, status := range statuses {
		assert.True(t, status.Applied, "migration %s should be applied", status.Version)
		assert.NotNil(t, status.AppliedAt)
	}
}

func TestMigratorUp_IsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	ctx := context.Background()
	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Up(ctx))

	pending, err := migrator.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigratorDown_RollsBackLast(t *testing.T) {
	db := setupTestDB(t)
	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	ctx := context.Background()
	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Down(ctx))

	pending, err := migrator.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "002", pending[0].Version)
}
