package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRunAppliesEmbeddedMigrationsOnSQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:migrate_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, Run(context.Background(), sqlDB, Dialect("sqlite"), "up"))

	for _, table := range []string{"products", "inventory_items", "orders", "order_return_refs", "outbox_events", "outbox_dlq"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	require.NoError(t, Run(context.Background(), sqlDB, Dialect("sqlite"), "reset"))
	assert.False(t, conn.Migrator().HasTable("orders"))
}

func TestDialect(t *testing.T) {
	assert.Equal(t, "sqlite3", Dialect("sqlite"))
	assert.Equal(t, "postgres", Dialect("postgres"))
	assert.Equal(t, "postgres", Dialect(""))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Order Tags!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_order_tags.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}
