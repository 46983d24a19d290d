package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/pkg/enums"
)

// OrderCreated is the order.created payload.
type OrderCreated struct {
	OrderID       uuid.UUID           `json:"orderId"`
	BuyerID       uuid.UUID           `json:"buyerId"`
	ShopID        uuid.UUID           `json:"shopId"`
	TotalCents    int                 `json:"totalCents"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	ItemCount     int                 `json:"itemCount"`
}

// OrderPaid is the order.paid payload.
type OrderPaid struct {
	OrderID          uuid.UUID `json:"orderId"`
	BuyerID          uuid.UUID `json:"buyerId"`
	PaymentReference string    `json:"paymentReference"`
	PaidAt           time.Time `json:"paidAt"`
}

// OrderStatusChanged covers order.shipped, order.delivered and
// order.cancelled.
type OrderStatusChanged struct {
	OrderID    uuid.UUID         `json:"orderId"`
	BuyerID    uuid.UUID         `json:"buyerId"`
	FromStatus enums.OrderStatus `json:"fromStatus"`
	ToStatus   enums.OrderStatus `json:"toStatus"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// DeliveryAssigned is the delivery.assigned payload.
type DeliveryAssigned struct {
	DeliveryID uuid.UUID `json:"deliveryId"`
	OrderID    uuid.UUID `json:"orderId"`
	AgentID    uuid.UUID `json:"agentId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// DeliveryStatusChanged covers the delivery handoff chain transitions.
type DeliveryStatusChanged struct {
	DeliveryID uuid.UUID            `json:"deliveryId"`
	OrderID    uuid.UUID            `json:"orderId"`
	AgentID    uuid.UUID            `json:"agentId"`
	FromStatus enums.DeliveryStatus `json:"fromStatus"`
	ToStatus   enums.DeliveryStatus `json:"toStatus"`
	OccurredAt time.Time            `json:"occurredAt"`
}
