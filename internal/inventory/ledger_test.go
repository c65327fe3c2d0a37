package inventory

import (
	"context"
	"io"
	"testing"

	"github.com/angelmondragon/ordercore/pkg/db/dbtest"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return dbtest.Open(t, &models.Product{}, &models.InventoryItem{})
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func seedProduct(t *testing.T, db *gorm.DB, available int, tracked bool) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Widget",
		PriceCents: 1000,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		ProductID:    product.ID,
		AvailableQty: available,
		Tracked:      tracked,
	}).Error)
	return product.ID
}

func TestLedgerDecrementGuardsAvailable(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	productID := seedProduct(t, db, 3, true)

	applied, err := ledger.Decrement(ctx, nil, productID, 2)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = ledger.Decrement(ctx, nil, productID, 2)
	require.NoError(t, err)
	assert.False(t, applied, "only one unit left")

	item, err := ledger.Get(ctx, nil, productID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.AvailableQty)
	assert.Equal(t, 2, item.SoldQty)

	_, err = ledger.Decrement(ctx, nil, productID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestLedgerSkipsUntrackedAndMissing(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	untracked := seedProduct(t, db, 0, false)

	applied, err := ledger.Decrement(ctx, nil, untracked, 5)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = ledger.Increment(ctx, nil, uuid.New(), 5)
	require.NoError(t, err)
	assert.False(t, applied)

	item, err := ledger.Get(ctx, nil, untracked)
	require.NoError(t, err)
	assert.Zero(t, item.AvailableQty)
}

func TestLedgerIncrementFloorsSold(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	productID := seedProduct(t, db, 5, true)

	applied, err := ledger.Decrement(ctx, nil, productID, 1)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = ledger.Increment(ctx, nil, productID, 3)
	require.NoError(t, err)
	require.True(t, applied)

	item, err := ledger.Get(ctx, nil, productID)
	require.NoError(t, err)
	assert.Equal(t, 7, item.AvailableQty)
	assert.Zero(t, item.SoldQty)
}

func TestLedgerRunsInsideCallerTransaction(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	productID := seedProduct(t, db, 4, true)

	tx := db.Begin()
	applied, err := ledger.Decrement(ctx, tx, productID, 4)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, tx.Rollback().Error)

	item, err := ledger.Get(ctx, nil, productID)
	require.NoError(t, err)
	assert.Equal(t, 4, item.AvailableQty)
}

func TestLedgerAdjust(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()
	productID := seedProduct(t, db, 2, true)

	item, err := ledger.Adjust(ctx, nil, productID, 8)
	require.NoError(t, err)
	assert.Equal(t, 10, item.AvailableQty)

	_, err = ledger.Adjust(ctx, nil, productID, -11)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	item, err = ledger.Adjust(ctx, nil, productID, -10)
	require.NoError(t, err)
	assert.Zero(t, item.AvailableQty)

	fresh := uuid.New()
	_, err = ledger.Adjust(ctx, nil, fresh, -1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	item, err = ledger.Adjust(ctx, nil, fresh, 6)
	require.NoError(t, err)
	assert.True(t, item.Tracked)
	assert.Equal(t, 6, item.AvailableQty)
}

func TestLedgerGetMany(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	a := seedProduct(t, db, 1, true)
	b := seedProduct(t, db, 2, false)

	rows, err := ledger.GetMany(context.Background(), nil, []uuid.UUID{a, b, uuid.New()})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[a].AvailableQty)
	assert.False(t, rows[b].Tracked)

	empty, err := ledger.GetMany(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
