package repository

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	goose.SetBaseFS(migrations)
	t.Cleanup(func() { goose.SetBaseFS(nil) })

	collected, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	require.NoError(t, err)
	require.NotEmpty(t, collected)
	assert.EqualValues(t, 1, collected[0].Version)

	raw, err := fs.ReadFile(migrations, "migrations/00001_init.sql")
	require.NoError(t, err)
	schema := string(raw)
	assert.Contains(t, schema, "-- +goose Up")
	assert.Contains(t, schema, "-- +goose Down")
	for _, table := range []string{"users", "accounts", "transactions", "payments", "microcredits", "contributions", "donations"} {
		assert.True(t, strings.Contains(schema, "bank."+table), "missing table %s", table)
	}
	assert.Contains(t, schema, "CHECK (amount >= 0)")
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	err := Migrate(context.Background(), nil, "sideways")
	assert.Error(t, err)
}
