package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/pkg/enums"
)

// PaymentIntent tracks payment progress for an order against a single rail.
type PaymentIntent struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method           enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AmountCents      int                 `gorm:"column:amount_cents;not null"`
	GatewayReference *string             `gorm:"column:gateway_reference;index"`
	GatewayPayload   json.RawMessage     `gorm:"column:gateway_payload;type:jsonb"`
	FailureReason    *string             `gorm:"column:failure_reason"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
