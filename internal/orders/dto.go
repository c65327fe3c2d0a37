package orders

import (
	"time"

	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/money"
	"github.com/angelmondragon/ordercore/pkg/pagination"
	"github.com/angelmondragon/ordercore/pkg/types"
	"github.com/google/uuid"
)

// OrderDTO is the wire shape of an order. Money travels as decimal strings.
type OrderDTO struct {
	ID                 uuid.UUID           `json:"id"`
	OrderNumber        string              `json:"order_number"`
	UserID             *uuid.UUID          `json:"user_id,omitempty"`
	GuestEmail         *string             `json:"guest_email,omitempty"`
	Status             enums.OrderStatus   `json:"status"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	Items              []LineItemDTO       `json:"items"`
	Subtotal           string              `json:"subtotal"`
	Tax                string              `json:"tax"`
	ShippingFee        string              `json:"shipping_fee"`
	Discount           string              `json:"discount"`
	Total              string              `json:"total"`
	Refunded           string              `json:"refunded"`
	StatusHistory      []StatusChangeDTO   `json:"status_history"`
	Returns            []ReturnDTO         `json:"returns"`
	Refunds            []RefundDTO         `json:"refunds"`
	ParentOrderID      *uuid.UUID          `json:"parent_order_id,omitempty"`
	ShippingAddress    types.Address       `json:"shipping_address"`
	TrackingNumber     *string             `json:"tracking_number,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty"`
	AllowedTransitions []enums.OrderStatus `json:"allowed_transitions"`
	Version            int64               `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// LineItemDTO is the wire shape of a line item.
type LineItemDTO struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Variant     string    `json:"variant,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	Tax         string    `json:"tax"`
	Discount    string    `json:"discount"`
	LineTotal   string    `json:"line_total"`
	Backordered bool      `json:"backordered"`
}

type StatusChangeDTO struct {
	Status    enums.OrderStatus `json:"status"`
	ChangedBy string            `json:"changed_by"`
	Note      string            `json:"note,omitempty"`
	At        time.Time         `json:"at"`
}

// ReturnDTO is the wire shape of a return request.
type ReturnDTO struct {
	ID             string             `json:"id"`
	Status         enums.ReturnStatus `json:"status"`
	Reason         string             `json:"reason"`
	RequestedBy    string             `json:"requested_by"`
	RequestedAt    time.Time          `json:"requested_at"`
	ReturnDeadline time.Time          `json:"return_deadline"`
	ProcessedBy    *string            `json:"processed_by,omitempty"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
	Notes          []string           `json:"notes,omitempty"`
	Items          []ReturnItemDTO    `json:"items"`
}

type ReturnItemDTO struct {
	OrderItemID uuid.UUID              `json:"order_item_id"`
	Quantity    int                    `json:"quantity"`
	UnitPrice   string                 `json:"unit_price"`
	Reason      string                 `json:"reason,omitempty"`
	Status      enums.ReturnItemStatus `json:"status"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
}

type RefundDTO struct {
	ID          string             `json:"id"`
	Amount      string             `json:"amount"`
	Reason      string             `json:"reason"`
	Method      enums.RefundMethod `json:"method"`
	ProcessedBy string             `json:"processed_by"`
	ProcessedAt time.Time          `json:"processed_at"`
}

// NewOrderDTO converts the aggregate for the wire.
func NewOrderDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		UserID:             order.UserID,
		GuestEmail:         order.GuestEmail,
		Status:             order.Status,
		PaymentStatus:      order.PaymentStatus,
		Items:              make([]LineItemDTO, 0, len(order.Items)),
		Subtotal:           money.FormatCents(order.SubtotalCents),
		Tax:                money.FormatCents(order.TaxCents),
		ShippingFee:        money.FormatCents(order.ShippingFeeCents),
		Discount:           money.FormatCents(order.DiscountCents),
		Total:              money.FormatCents(order.TotalCents),
		Refunded:           money.FormatCents(order.RefundedCents),
		StatusHistory:      make([]StatusChangeDTO, 0, len(order.StatusHistory)),
		Returns:            NewReturnDTOs(order.Returns),
		Refunds:            make([]RefundDTO, 0, len(order.Refunds)),
		ParentOrderID:      order.ParentOrderID,
		ShippingAddress:    order.ShippingAddress,
		TrackingNumber:     order.TrackingNumber,
		Notes:              order.Notes,
		DeliveredAt:        order.DeliveredAt,
		AllowedTransitions: AllowedTransitions(order.Status),
		Version:            order.Version,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, LineItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			Name:        item.Name,
			SKU:         item.SKU,
			ImageURL:    item.ImageURL,
			Variant:     item.Variant,
			Quantity:    item.Quantity,
			UnitPrice:   money.FormatCents(item.UnitPriceCents),
			Tax:         money.FormatCents(item.TaxCents),
			Discount:    money.FormatCents(item.DiscountCents),
			LineTotal:   money.FormatCents(item.LineTotalCents),
			Backordered: item.Backordered,
		})
	}
	for _, change := range order.StatusHistory {
		dto.StatusHistory = append(dto.StatusHistory, StatusChangeDTO(change))
	}
	for _, refund := range order.Refunds {
		dto.Refunds = append(dto.Refunds, RefundDTO{
			ID:          refund.ID,
			Amount:      money.FormatCents(refund.AmountCents),
			Reason:      refund.Reason,
			Method:      refund.Method,
			ProcessedBy: refund.ProcessedBy,
			ProcessedAt: refund.ProcessedAt,
		})
	}
	if dto.AllowedTransitions == nil {
		dto.AllowedTransitions = []enums.OrderStatus{}
	}
	return dto
}

// NewReturnDTOs converts embedded return requests for the wire.
func NewReturnDTOs(returns []models.ReturnRequest) []ReturnDTO {
	out := make([]ReturnDTO, 0, len(returns))
	for _, ret := range returns {
		dto := ReturnDTO{
			ID:             ret.ID,
			Status:         ret.Status,
			Reason:         ret.Reason,
			RequestedBy:    ret.RequestedBy,
			RequestedAt:    ret.RequestedAt,
			ReturnDeadline: ret.ReturnDeadline,
			ProcessedBy:    ret.ProcessedBy,
			ProcessedAt:    ret.ProcessedAt,
			Notes:          ret.Notes,
			Items:          make([]ReturnItemDTO, 0, len(ret.Items)),
		}
		for _, item := range ret.Items {
			dto.Items = append(dto.Items, ReturnItemDTO{
				OrderItemID: item.OrderItemID,
				Quantity:    item.Quantity,
				UnitPrice:   money.FormatCents(item.UnitPriceCents),
				Reason:      item.Reason,
				Status:      item.Status,
				ProcessedAt: item.ProcessedAt,
			})
		}
		out = append(out, dto)
	}
	return out
}

// NewOrderPageDTO converts a page of orders.
func NewOrderPageDTO(page *pagination.Page[models.Order]) pagination.Page[*OrderDTO] {
	out := pagination.Page[*OrderDTO]{Items: make([]*OrderDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Items = append(out.Items, NewOrderDTO(&page.Items[i]))
	}
	return out
}
