package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/ordercore/api/responses"
	"github.com/angelmondragon/ordercore/api/validators"
	"github.com/angelmondragon/ordercore/internal/inventory"
	productsvc "github.com/angelmondragon/ordercore/internal/products"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/money"
	"github.com/google/uuid"
)

type stockChecker interface {
	CheckStock(ctx context.Context, queries []inventory.StockQuery) ([]inventory.StockReport, error)
}

type checkStockItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=10000"`
}

type checkStockRequest struct {
	Items []checkStockItem `json:"items" validate:"required,min=1,max=200,dive"`
}

type createProductRequest struct {
	SKU          string  `json:"sku" validate:"required,max=64"`
	Name         string  `json:"name" validate:"required,max=200"`
	ImageURL     *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Variant      *string `json:"variant,omitempty" validate:"omitempty,max=100"`
	Price        string  `json:"price" validate:"required,money"`
	TaxRateBps   int     `json:"tax_rate_bps" validate:"min=0,max=10000"`
	Inactive     bool    `json:"inactive,omitempty"`
	Untracked    bool    `json:"untracked,omitempty"`
	AvailableQty int     `json:"available_qty" validate:"min=0"`
}

type restockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type productResponse struct {
	ID           uuid.UUID `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	ImageURL     *string   `json:"image_url,omitempty"`
	Variant      *string   `json:"variant,omitempty"`
	Price        string    `json:"price"`
	TaxRateBps   int       `json:"tax_rate_bps"`
	IsActive     bool      `json:"is_active"`
	Tracked      bool      `json:"tracked"`
	AvailableQty int       `json:"available_qty"`
	SoldQty      int       `json:"sold_qty"`
	CreatedAt    time.Time `json:"created_at"`
}

type inventoryResponse struct {
	ProductID    uuid.UUID `json:"product_id"`
	Tracked      bool      `json:"tracked"`
	AvailableQty int       `json:"available_qty"`
	SoldQty      int       `json:"sold_qty"`
}

// CheckStock reports availability per product without reserving anything.
func CheckStock(checker stockChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory checker unavailable"))
			return
		}

		var payload checkStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		queries := make([]inventory.StockQuery, 0, len(payload.Items))
		for _, item := range payload.Items {
			queries = append(queries, inventory.StockQuery{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		reports, err := checker.CheckStock(r.Context(), queries)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reports)
	}
}

// AdminCreateProduct adds a catalog entry with its initial stock.
func AdminCreateProduct(svc productsvc.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		price, err := money.ParseCents(payload.Price)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price"))
			return
		}

		product, err := svc.CreateProduct(r.Context(), productsvc.CreateProductInput{
			SKU:          payload.SKU,
			Name:         payload.Name,
			ImageURL:     payload.ImageURL,
			Variant:      payload.Variant,
			PriceCents:   price,
			TaxRateBps:   payload.TaxRateBps,
			IsActive:     !payload.Inactive,
			Tracked:      !payload.Untracked,
			AvailableQty: payload.AvailableQty,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newProductResponse(product))
	}
}

// AdminRestockProduct applies a relative stock adjustment.
func AdminRestockProduct(svc productsvc.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId", "product id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.RestockProduct(r.Context(), productID, payload.Delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inventoryResponse{
			ProductID:    item.ProductID,
			Tracked:      item.Tracked,
			AvailableQty: item.AvailableQty,
			SoldQty:      item.SoldQty,
		})
	}
}

func newProductResponse(product *models.Product) productResponse {
	resp := productResponse{
		ID:         product.ID,
		SKU:        product.SKU,
		Name:       product.Name,
		ImageURL:   product.ImageURL,
		Variant:    product.Variant,
		Price:      money.FormatCents(product.PriceCents),
		TaxRateBps: product.TaxRateBps,
		IsActive:   product.IsActive,
		CreatedAt:  product.CreatedAt,
	}
	if product.Inventory != nil {
		resp.Tracked = product.Inventory.Tracked
		resp.AvailableQty = product.Inventory.AvailableQty
		resp.SoldQty = product.Inventory.SoldQty
	}
	return resp
}
