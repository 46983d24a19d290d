package orders

import (
	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/pkg/enums"
	"github.com/addismart/marketplace-backend/pkg/types"
)

// CreateInput captures everything checkout needs to turn a cart into an order.
type CreateInput struct {
	BuyerID         uuid.UUID
	CartID          uuid.UUID
	PaymentMethod   enums.PaymentMethod
	ShippingAddress *types.Address
}

// Actor identifies who is driving a lifecycle operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
	ShopID *uuid.UUID
}

// InsufficientStockDetails is attached to conflict errors raised when a
// guarded stock decrement matches zero rows.
type InsufficientStockDetails struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Requested   int       `json:"requested"`
}
