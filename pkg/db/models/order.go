package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/pkg/enums"
	"github.com/addismart/marketplace-backend/pkg/types"
)

// Order is the priced, immutable record produced from a cart at checkout.
// Line prices and totals are frozen at creation; later catalog changes never
// touch an existing order.
type Order struct {
	ID                      uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID                 uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	ShopID                  uuid.UUID           `gorm:"column:shop_id;type:uuid;not null"`
	CartID                  uuid.UUID           `gorm:"column:cart_id;type:uuid;not null"`
	Status                  enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod           enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentReference        *string             `gorm:"column:payment_reference;uniqueIndex"`
	SubtotalCents           int                 `gorm:"column:subtotal_cents;not null"`
	TotalCents              int                 `gorm:"column:total_cents;not null"`
	ShippingAddress         *types.Address      `gorm:"column:shipping_address;type:jsonb"`
	DeliveryCode            string              `gorm:"column:delivery_code;not null"`
	DeliveryCodeConsumedAt  *time.Time          `gorm:"column:delivery_code_consumed_at"`
	IsDelivered             bool                `gorm:"column:is_delivered;not null;default:false"`
	PaidAt                  *time.Time          `gorm:"column:paid_at"`
	ShippedAt               *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt             *time.Time          `gorm:"column:delivered_at"`
	CancelledAt             *time.Time          `gorm:"column:cancelled_at"`
	Items                   []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt               time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
