package orders

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/addismart/marketplace-backend/internal/orders"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	"github.com/addismart/marketplace-backend/pkg/types"
)

// orderResponse is the buyer-facing order shape. The confirmation code is
// deliberately absent: it is returned once at creation and never again.
type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	Status           enums.OrderStatus   `json:"status"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	SubtotalCents    int                 `json:"subtotal_cents"`
	TotalCents       int                 `json:"total_cents"`
	ShippingAddress  *types.Address      `json:"shipping_address,omitempty"`
	IsDelivered      bool                `json:"is_delivered"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	ShippedAt        *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time          `json:"cancelled_at,omitempty"`
	Items            []orderItemResponse `json:"items"`
	CreatedAt        time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	TotalCents     int       `json:"total_cents"`
	Cancelled      bool      `json:"cancelled"`
}

type createOrderResponse struct {
	Order            orderResponse `json:"order"`
	ConfirmationCode string        `json:"confirmation_code"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	RedirectURL      string        `json:"redirect_url,omitempty"`
	ClientSecret     string        `json:"client_secret,omitempty"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}

func toOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
			Cancelled:      item.Cancelled,
		})
	}
	return orderResponse{
		ID:               order.ID,
		Status:           order.Status,
		PaymentMethod:    order.PaymentMethod,
		PaymentReference: order.PaymentReference,
		SubtotalCents:    order.SubtotalCents,
		TotalCents:       order.TotalCents,
		ShippingAddress:  order.ShippingAddress,
		IsDelivered:      order.IsDelivered,
		PaidAt:           order.PaidAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
		Items:            items,
		CreatedAt:        order.CreatedAt,
	}
}

func toOrderListResponse(list *internalorders.OrderList) orderListResponse {
	rows := make([]orderResponse, 0, len(list.Orders))
	for i := range list.Orders {
		rows = append(rows, toOrderResponse(&list.Orders[i]))
	}
	return orderListResponse{Orders: rows, NextCursor: list.NextCursor}
}
