package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/pkg/enums"
)

// CartRecord captures a buyer-scoped cart snapshot consumed at checkout.
type CartRecord struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID     uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null"`
	ShopID      uuid.UUID        `gorm:"column:shop_id;type:uuid;not null"`
	Status      enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ConvertedAt *time.Time       `gorm:"column:converted_at"`
	Items       []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
