package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbclient_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	ctx := context.Background()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "rollback should leave only the committed row")
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicky"}).Error; err != nil {
				return err
			}
			panic("kaboom")
		})
	})

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "sqlite", client.Dialect())
}

func TestIsUniqueViolationDetectsSQLiteAndPostgres(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)
	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))

	pgErr := errors.New(`ERROR: duplicate key value violates unique constraint "ux_orders_number"`)
	assert.True(t, IsUniqueViolation(pgErr, "ux_orders_number"))
	assert.False(t, IsUniqueViolation(pgErr, "ux_other"))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsNotFound(t *testing.T) {
	db := newTestDB(t)
	var row testModel
	err := db.First(&row, "name = ?", "missing").Error
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestDialectorForSelectsDriver(t *testing.T) {
	assert.Equal(t, "sqlite", dialectorFor(config.DBConfig{Driver: "sqlite", DSN: "file::memory:"}).Name())
	assert.Equal(t, "postgres", dialectorFor(config.DBConfig{Driver: "postgres", DSN: "postgres://x"}).Name())
}
