package orders

import (
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/google/uuid"
)

// ItemIndex maps line item ids to their position in order.Items.
func ItemIndex(order *models.Order) map[uuid.UUID]int {
	index := make(map[uuid.UUID]int, len(order.Items))
	for i, item := range order.Items {
		index[item.ID] = i
	}
	return index
}

// ItemByID returns a pointer into order.Items, or nil.
func ItemByID(order *models.Order, id uuid.UUID) *models.LineItem {
	for i := range order.Items {
		if order.Items[i].ID == id {
			return &order.Items[i]
		}
	}
	return nil
}

// ReturnByID returns a pointer into order.Returns, or nil.
func ReturnByID(order *models.Order, id string) *models.ReturnRequest {
	for i := range order.Returns {
		if order.Returns[i].ID == id {
			return &order.Returns[i]
		}
	}
	return nil
}

// lineTotal is quantity times unit price less the line discount, never negative.
func lineTotal(item models.LineItem) int64 {
	total := int64(item.Quantity)*item.UnitPriceCents - item.DiscountCents
	if total < 0 {
		return 0
	}
	return total
}

// RecalculateTotals refreshes line totals, subtotal, tax and total from the
// current items. Shipping and order-level discount are kept.
func RecalculateTotals(order *models.Order) {
	var subtotal, tax int64
	for i := range order.Items {
		order.Items[i].LineTotalCents = lineTotal(order.Items[i])
		subtotal += order.Items[i].LineTotalCents
		tax += order.Items[i].TaxCents
	}
	order.SubtotalCents = subtotal
	order.TaxCents = tax
	total := subtotal + tax + order.ShippingFeeCents - order.DiscountCents
	if total < 0 {
		total = 0
	}
	order.TotalCents = total
}

// ensureCollections replaces nil slices so JSON columns never store null.
func ensureCollections(order *models.Order) {
	if order.Items == nil {
		order.Items = []models.LineItem{}
	}
	if order.StatusHistory == nil {
		order.StatusHistory = []models.StatusChange{}
	}
	if order.Returns == nil {
		order.Returns = []models.ReturnRequest{}
	}
	if order.Refunds == nil {
		order.Refunds = []models.Refund{}
	}
}
