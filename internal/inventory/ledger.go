package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/ordercore/internal/repo"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientStock means a relative decrement would drive available_qty below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity rejects non-positive mutation amounts.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Ledger owns the inventory_items table. Every mutation is a relative update
// so concurrent writers never overwrite each other's counts.
type Ledger struct {
	repo.Base
	now func() time.Time
}

// NewLedger builds a ledger over db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{Base: repo.NewBase(db), now: time.Now}
}

// Get returns the inventory row for productID. gorm.ErrRecordNotFound is
// returned untouched when the product has no row.
func (l *Ledger) Get(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := l.Conn(ctx, tx).First(&item, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// GetMany loads the rows for ids keyed by product id. Missing products are
// absent from the map.
func (l *Ledger) GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error) {
	out := make(map[uuid.UUID]models.InventoryItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.InventoryItem
	if err := l.Conn(ctx, tx).Where("product_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}

// Decrement moves qty units from available to sold when enough stock is on
// hand. applied is false when the row is missing, untracked or short.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	res := l.Conn(ctx, tx).Exec(
		`UPDATE inventory_items
		 SET available_qty = available_qty - ?, sold_qty = sold_qty + ?, updated_at = ?
		 WHERE product_id = ? AND tracked = ? AND available_qty >= ?`,
		qty, qty, l.now().UTC(), productID, true, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Increment returns qty units to available and lowers sold, never below zero.
func (l *Ledger) Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	res := l.Conn(ctx, tx).Exec(
		`UPDATE inventory_items
		 SET available_qty = available_qty + ?,
		     sold_qty = CASE WHEN sold_qty > ? THEN sold_qty - ? ELSE 0 END,
		     updated_at = ?
		 WHERE product_id = ? AND tracked = ?`,
		qty, qty, qty, l.now().UTC(), productID, true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Adjust applies an administrative restock or write-off. A product without a
// row gets a tracked one when delta is not negative.
func (l *Ledger) Adjust(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) (*models.InventoryItem, error) {
	conn := l.Conn(ctx, tx)
	res := conn.Exec(
		`UPDATE inventory_items
		 SET available_qty = available_qty + ?, updated_at = ?
		 WHERE product_id = ? AND available_qty + ? >= 0`,
		delta, l.now().UTC(), productID, delta,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		_, err := l.Get(ctx, tx, productID)
		switch {
		case err == nil:
			return nil, ErrInsufficientStock
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		case delta < 0:
			return nil, ErrInsufficientStock
		}
		row := models.InventoryItem{
			ProductID:    productID,
			AvailableQty: delta,
			Tracked:      true,
			UpdatedAt:    l.now().UTC(),
		}
		if err := conn.Create(&row).Error; err != nil {
			return nil, err
		}
	}
	return l.Get(ctx, tx, productID)
}
