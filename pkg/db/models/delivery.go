package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/pkg/enums"
)

// Delivery is the handoff record binding an order to a delivery agent. A
// partial unique index on order_id (while status is non-terminal) guarantees
// at most one live delivery per order.
type Delivery struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	AgentID     uuid.UUID            `gorm:"column:agent_id;type:uuid;not null;index"`
	AssignedBy  uuid.UUID            `gorm:"column:assigned_by;type:uuid;not null"`
	Status      enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'assigned'"`
	Notes       *string              `gorm:"column:notes"`
	AssignedAt  time.Time            `gorm:"column:assigned_at;not null"`
	PickedUpAt  *time.Time           `gorm:"column:picked_up_at"`
	DeliveredAt *time.Time           `gorm:"column:delivered_at"`
	FailedAt    *time.Time           `gorm:"column:failed_at"`
	Order       *Order               `gorm:"foreignKey:OrderID"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
