package inventory

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordercore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// MaxQuantity bounds the units of one product in a single request.
	MaxQuantity = 10_000
	// MaxLines bounds the lines in a single request.
	MaxLines = 200
)

// StockQuery asks whether quantity units of a product can be sold.
type StockQuery struct {
	ProductID uuid.UUID
	Quantity  int
}

// StockReport answers a StockQuery. Untracked products are always sufficient.
type StockReport struct {
	ProductID  uuid.UUID `json:"product_id"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
	Tracked    bool      `json:"tracked"`
	Sufficient bool      `json:"sufficient"`
}

type productLookup interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
}

type stockReader interface {
	GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error)
}

// Checker answers stock availability questions without mutating anything.
type Checker struct {
	products productLookup
	stock    stockReader
}

// NewChecker wires a checker.
func NewChecker(products productLookup, stock stockReader) (*Checker, error) {
	if products == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &Checker{products: products, stock: stock}, nil
}

// CheckStock reports availability per product. Repeated products are summed
// into one report, in first-seen order.
func (c *Checker) CheckStock(ctx context.Context, queries []StockQuery) ([]StockReport, error) {
	if len(queries) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	totals, order, err := SumByProduct(queries)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		if _, err := c.products.GetByID(ctx, nil, id); err != nil {
			return nil, err
		}
	}
	rows, err := c.stock.GetMany(ctx, nil, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}

	reports := make([]StockReport, 0, len(order))
	for _, id := range order {
		report := StockReport{ProductID: id, Requested: totals[id], Sufficient: true}
		if row, ok := rows[id]; ok {
			report.Available = row.AvailableQty
			report.Tracked = row.Tracked
			if row.Tracked {
				report.Sufficient = row.AvailableQty >= report.Requested
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// SumByProduct folds queries into per-product totals and returns the product
// ids in first-seen order.
func SumByProduct(queries []StockQuery) (map[uuid.UUID]int, []uuid.UUID, error) {
	if len(queries) > MaxLines {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d items per request", MaxLines))
	}
	totals := make(map[uuid.UUID]int, len(queries))
	order := make([]uuid.UUID, 0, len(queries))
	for i, q := range queries {
		if q.ProductID == uuid.Nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: product id is required", i))
		}
		if q.Quantity < 1 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: quantity must be at least 1", i))
		}
		if q.Quantity > MaxQuantity || totals[q.ProductID]+q.Quantity > MaxQuantity {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: quantity must be at most %d per product", i, MaxQuantity))
		}
		if _, seen := totals[q.ProductID]; !seen {
			order = append(order, q.ProductID)
		}
		totals[q.ProductID] += q.Quantity
	}
	return totals, order, nil
}
