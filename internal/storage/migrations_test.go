package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/firetrack/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_SetsSchemaVersion(t *testing.T) {
	store := createTestStorage(t)

	var version int
	require.NoError(t, store.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	cats, err := store.GetCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, len(defaultCategories))

	rules, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, len(systemRules))
}

func TestMigrate_SeedsSystemRules(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	system := true
	rules, err := store.QueryRules(ctx, service.RuleFilter{IsSystem: &system})
	require.NoError(t, err)
	require.Len(t, rules, len(systemRules))

	for _, r := range rules {
		assert.True(t, r.IsSystem)
		assert.NotEmpty(t, r.CategoryName, "rule %q should join its category", r.Pattern)
	}
}

func TestMigrate_Tables(t *testing.T) {
	store := createTestStorage(t)

	tables := []string{
		"categories",
		"category_mappings",
		"transactions",
		"ai_usage_tracking",
		"categorisation_corrections",
	}
	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			var count int
			err := store.db.QueryRow(
				`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
			).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}
