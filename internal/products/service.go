package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/ordercore/internal/inventory"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Catalog is the product collaborator used by order creation and by the
// administrative stock endpoints.
type Catalog interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
	AdjustQuantity(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) (*models.InventoryItem, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error)
	RestockProduct(ctx context.Context, id uuid.UUID, delta int) (*models.InventoryItem, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	SKU          string
	Name         string
	ImageURL     *string
	Variant      *string
	PriceCents   int64
	TaxRateBps   int
	IsActive     bool
	Tracked      bool
	AvailableQty int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockAdjuster interface {
	Adjust(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) (*models.InventoryItem, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	ledger stockAdjuster
	logg   *logger.Logger
}

// NewService constructs the catalog.
func NewService(repo *Repository, tx txRunner, ledger stockAdjuster, logg *logger.Logger) (Catalog, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, ledger: ledger, logg: logg}, nil
}

func (s *service) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

// AdjustQuantity applies a relative stock change inside tx.
func (s *service) AdjustQuantity(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) (*models.InventoryItem, error) {
	if _, err := s.GetByID(ctx, tx, id); err != nil {
		return nil, err
	}
	item, err := s.ledger.Adjust(ctx, tx, id, delta)
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "adjustment would make available quantity negative").
				WithReason(pkgerrors.ReasonInsufficientStock).
				WithDetails(map[string]any{"productId": id, "delta": delta})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust inventory")
	}
	return item, nil
}

// RestockProduct runs AdjustQuantity in its own transaction.
func (s *service) RestockProduct(ctx context.Context, id uuid.UUID, delta int) (*models.InventoryItem, error) {
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must not be zero")
	}
	var item *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		adjusted, err := s.AdjustQuantity(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		item = adjusted
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "restock product")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id":    id.String(),
		"delta":         delta,
		"available_qty": item.AvailableQty,
	}), "product restocked")
	return item, nil
}

// CreateProduct inserts the product and, when tracked, its inventory row.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)
	switch {
	case input.SKU == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	case input.Name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case input.PriceCents < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	case input.TaxRateBps < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must not be negative")
	case input.AvailableQty < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "available quantity must not be negative")
	}

	product := &models.Product{
		ID:         uuid.New(),
		SKU:        input.SKU,
		Name:       input.Name,
		ImageURL:   input.ImageURL,
		Variant:    input.Variant,
		PriceCents: input.PriceCents,
		TaxRateBps: input.TaxRateBps,
		IsActive:   input.IsActive,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("sku %s already exists", product.SKU))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}
		if !input.Tracked {
			return tx.WithContext(ctx).Create(&models.InventoryItem{ProductID: product.ID}).Error
		}
		if _, err := s.ledger.Adjust(ctx, tx, product.ID, input.AvailableQty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: seed inventory")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "create product")
	}
	return s.GetByID(ctx, nil, product.ID)
}

func asServiceError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
